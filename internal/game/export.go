package game

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var exportMu sync.Mutex

// ExportMatch appends a finished match to a plain text results file.
func ExportMatch(st State, filename string) error {
	exportMu.Lock()
	defer exportMu.Unlock()

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	fileExists := false
	if _, err := os.Stat(filename); err == nil {
		fileExists = true
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder
	if !fileExists {
		sb.WriteString("Gridmind Match Results\n")
		sb.WriteString(strings.Repeat("=", 50) + "\n")
	}

	sb.WriteString(fmt.Sprintf("\nMatch %s (%s, human plays %s)\n", st.ID, st.Difficulty, st.Human))
	sb.WriteString(fmt.Sprintf("Started: %s\n", st.CreatedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(strings.Repeat("-", 40) + "\n")
	for i, mv := range st.Moves {
		who := "human"
		if mv.ByEngine {
			who = "engine"
		}
		sb.WriteString(fmt.Sprintf("%d. %s %s -> cell %d\n", i+1, who, mv.Mark, mv.Cell))
	}
	b := st.Board
	if len(b) == 9 {
		sb.WriteString(fmt.Sprintf("\n %s\n %s\n %s\n", b[0:3], b[3:6], b[6:9]))
	}

	result := string(st.Status)
	if st.Winner != "" {
		result += " (" + st.Winner + " wins)"
	}
	sb.WriteString(fmt.Sprintf("\nResult: %s\n", result))
	sb.WriteString(fmt.Sprintf("Exported at %s\n", time.Now().Format("2006-01-02 15:04:05")))

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}
