package output

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"lemmy-harvester/internal/api"
)

// Router owns the harvest output files: one append-only JSONL file per
// community for posts, and one gzip-compressed JSONL file per UTC calendar
// day for comments (a single global stream; each record carries its
// community and post id). The daily file rotates lazily on the first write
// after the UTC date changes.
type Router struct {
	dir string

	mu        sync.Mutex
	postFiles map[string]*os.File

	commentDay  string
	commentFile *os.File
	commentGz   *gzip.Writer
	commentEnc  *json.Encoder

	now func() time.Time
}

// commentRecord is one line of the daily comment stream.
type commentRecord struct {
	Community string          `json:"community"`
	PostID    int64           `json:"post_id"`
	Comment   json.RawMessage `json:"comment"`
}

func NewRouter(dir string) (*Router, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Router{
		dir:       dir,
		postFiles: make(map[string]*os.File),
		now:       time.Now,
	}, nil
}

// WritePost appends one raw post payload to the community's post file.
func (r *Router) WritePost(community string, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.postFile(community)
	if err != nil {
		return err
	}
	if _, err := file.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("failed to append post for %s: %w", community, err)
	}
	return nil
}

func (r *Router) postFile(community string) (*os.File, error) {
	if file, ok := r.postFiles[community]; ok {
		return file, nil
	}
	path := filepath.Join(r.dir, community+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open post file for %s: %w", community, err)
	}
	r.postFiles[community] = file
	return file, nil
}

// WriteComments appends a post's comments to the current day's compressed
// stream, rotating first if the UTC date has changed since the last write.
// The compressed stream is flushed after every post so a crash between
// cycles loses nothing already written.
func (r *Router) WriteComments(community string, postID int64, comments []api.CommentView) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := r.now().UTC().Format("2006-01-02")
	if day != r.commentDay {
		if err := r.rotateComments(day); err != nil {
			return err
		}
	}

	for _, comment := range comments {
		record := commentRecord{
			Community: community,
			PostID:    postID,
			Comment:   comment.Raw,
		}
		if err := r.commentEnc.Encode(record); err != nil {
			return fmt.Errorf("failed to append comment for post %d: %w", postID, err)
		}
	}
	if err := r.commentGz.Flush(); err != nil {
		return fmt.Errorf("failed to flush comment stream: %w", err)
	}
	return nil
}

func (r *Router) rotateComments(day string) error {
	if err := r.closeComments(); err != nil {
		// The old day's data was flushed after every write, so a failed
		// close is loud but not fatal to the new day's stream.
		log.Error().Err(err).Str("day", r.commentDay).Msg("Failed to close previous comment file")
	}

	path := filepath.Join(r.dir, "comments-"+day+".jsonl.gz")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open comment file for %s: %w", day, err)
	}

	r.commentDay = day
	r.commentFile = file
	r.commentGz = gzip.NewWriter(file)
	r.commentEnc = json.NewEncoder(r.commentGz)
	log.Info().Str("file", path).Msg("Opened comment output file")
	return nil
}

func (r *Router) closeComments() error {
	if r.commentFile == nil {
		return nil
	}
	gzErr := r.commentGz.Close()
	fileErr := r.commentFile.Close()
	r.commentFile = nil
	r.commentGz = nil
	r.commentEnc = nil
	if gzErr != nil {
		return gzErr
	}
	return fileErr
}

func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	if err := r.closeComments(); err != nil {
		firstErr = err
	}
	for community, file := range r.postFiles {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.postFiles, community)
	}
	return firstErr
}
