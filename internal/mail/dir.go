package mail

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// processedDir is the subdirectory fetched messages are moved into.
const processedDir = "processed"

// FileInfo describes an .eml file in a mail directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// DirSource reads .eml files from a directory. Files directly in the
// directory are unseen; fetching them as unseen moves them into processed/.
type DirSource struct {
	dir string
}

// NewDirSource creates a DirSource rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Fetch returns messages matching c, ordered by received time.
func (s *DirSource) Fetch(c Criteria) ([]Message, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	dirs := []string{s.dir}
	if !c.UnseenOnly {
		dirs = append(dirs, filepath.Join(s.dir, processedDir))
	}

	var msgs []Message
	for _, dir := range dirs {
		files, err := Scan(dir)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			msg, err := readFile(f)
			if err != nil {
				return nil, err
			}
			if !c.Contains(msg.Received) {
				continue
			}
			msgs = append(msgs, msg)
		}
	}

	if c.UnseenOnly {
		if err := s.markAll(msgs); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Received.Equal(msgs[j].Received) {
			return msgs[i].UID < msgs[j].UID
		}
		return msgs[i].Received.Before(msgs[j].Received)
	})
	return msgs, nil
}

// readFile parses one .eml file. A file that is not valid MIME still yields a
// message (with no subject or body) so one bad file cannot block the mailbox.
func readFile(f FileInfo) (Message, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return Message{}, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer file.Close()

	msg, err := Parse(file)
	if err != nil {
		msg = Message{}
	}
	msg.UID = f.Name
	if msg.Received.IsZero() {
		info, err := file.Stat()
		if err != nil {
			return Message{}, fmt.Errorf("stat %s: %w", f.Name, err)
		}
		msg.Received = info.ModTime()
	}
	return msg, nil
}

// Scan returns the .eml files directly inside dir. A missing dir is empty.
func Scan(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading mail dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), ".eml") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// markAll moves every message to processed/. On failure the files already
// moved are put back so a later unseen fetch returns them again.
func (s *DirSource) markAll(msgs []Message) error {
	for i, msg := range msgs {
		if err := s.MarkProcessed(msg.UID); err != nil {
			for _, done := range msgs[:i] {
				if rerr := s.restore(done.UID); rerr != nil {
					err = fmt.Errorf("%w (restoring %s: %v)", err, done.UID, rerr)
				}
			}
			return err
		}
	}
	return nil
}

func (s *DirSource) restore(fileName string) error {
	return os.Rename(filepath.Join(s.dir, processedDir, fileName), filepath.Join(s.dir, fileName))
}

// MarkProcessed moves a file from the mail dir to processed/.
func (s *DirSource) MarkProcessed(fileName string) error {
	src := filepath.Join(s.dir, fileName)
	dstDir := filepath.Join(s.dir, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}
