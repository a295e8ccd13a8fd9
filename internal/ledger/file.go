package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"poolmonitor/internal/model"
)

// FileLedger appends posts to a JSONL file.
type FileLedger struct {
	path string
	mu   sync.Mutex
}

// NewFileLedger returns a ledger backed by the file at path.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Append writes post as one JSON line and syncs the file.
func (l *FileLedger) Append(_ context.Context, post model.Post) (string, error) {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	line, err := json.Marshal(post)
	if err != nil {
		return "", fmt.Errorf("marshal post: %w", err)
	}

	dir := filepath.Dir(l.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create ledger dir: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open ledger file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return "", fmt.Errorf("write post: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return "", fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("flush ledger: %w", err)
	}
	if err := file.Sync(); err != nil {
		return "", fmt.Errorf("sync ledger: %w", err)
	}
	return post.ID, nil
}

// QueryLatest scans the file and returns matching posts, newest first.
func (l *FileLedger) QueryLatest(_ context.Context, postType, author string) ([]model.Post, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	defer file.Close()

	var posts []model.Post
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var post model.Post
		if err := json.Unmarshal(scanner.Bytes(), &post); err != nil {
			return nil, fmt.Errorf("decode ledger line %d: %w", lineNo, err)
		}
		if Matches(post, postType, author) {
			posts = append(posts, post)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
		posts[i], posts[j] = posts[j], posts[i]
	}
	return posts, nil
}
