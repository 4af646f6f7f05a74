package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"aide/internal/approval"
	"aide/internal/logging"
)

const (
	frontMatterDelim = "---"
	fileExt          = ".md"
)

// stateDirs maps each canonical status to its vault subdirectory. The
// directory a file lives in is the source of truth for canonical state; the
// front matter status field is where the human writes a decision while the
// file is still under pending/.
var stateDirs = map[approval.Status]string{
	approval.StatusPending:  "pending",
	approval.StatusApproved: "approved",
	approval.StatusRejected: "rejected",
	approval.StatusExpired:  "expired",
	approval.StatusExecuted: "executed",
	approval.StatusFailed:   "failed",
}

// Store persists approval requests as markdown files with a YAML front
// matter header, one file per request, in a vault directory the reviewer
// already has open. Records are never deleted; terminal states remain
// inspectable indefinitely.
type Store struct {
	mu      sync.Mutex
	baseDir string
	logger  logging.Logger
	now     func() time.Time
}

// New creates a file store rooted at baseDir, creating state directories as
// needed.
func New(baseDir string) (*Store, error) {
	if strings.HasPrefix(baseDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		baseDir = filepath.Join(home, baseDir[2:])
	}
	for _, dir := range stateDirs {
		if err := os.MkdirAll(filepath.Join(baseDir, dir), 0755); err != nil {
			return nil, fmt.Errorf("create vault directory %s: %w", dir, err)
		}
	}
	return &Store{
		baseDir: baseDir,
		logger:  logging.NewComponentLogger("ApprovalFileStore"),
		now:     time.Now,
	}, nil
}

// SetClock overrides the store's time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// BaseDir returns the vault root.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) path(status approval.Status, id string) string {
	return filepath.Join(s.baseDir, stateDirs[status], id+fileExt)
}

// Create persists a new pending request. The file is created exclusively so
// an ID collision fails loudly instead of silently overwriting a record.
func (s *Store) Create(_ context.Context, req *approval.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Status != approval.StatusPending {
		return fmt.Errorf("create: request %s must start pending, got %q", req.ID, req.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encode(req)
	if err != nil {
		return fmt.Errorf("encode request %s: %w", req.ID, err)
	}

	path := s.path(approval.StatusPending, req.ID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create request file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write request file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close request file: %w", err)
	}
	return nil
}

// Get retrieves a request wherever a previous poll cycle may have moved it.
// For records outside pending/, the directory decides the status: a terminal
// file hand-edited back to pending stays terminal.
func (s *Store) Get(_ context.Context, id string) (*approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, _, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ListPending enumerates the pending directory. Files a human has edited to
// approved or rejected still list here; the canonical transition happens when
// the poller observes the edit. Corrupt files are logged and skipped, never
// aborting the listing.
func (s *Store) ListPending(_ context.Context) ([]*approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listDirLocked(approval.StatusPending)
}

// ListApproved enumerates the approved directory. A request only lingers here
// when a previous run stopped between approving and recording the outcome.
func (s *Store) ListApproved(_ context.Context) ([]*approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listDirLocked(approval.StatusApproved)
}

func (s *Store) listDirLocked(status approval.Status) ([]*approval.Request, error) {
	dir := filepath.Join(s.baseDir, stateDirs[status])
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s directory: %w", stateDirs[status], err)
	}

	var matched []*approval.Request
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		req, err := s.read(filepath.Join(dir, entry.Name()))
		if err != nil {
			s.logger.Error("Skipping unreadable request file %s: %v", entry.Name(), err)
			continue
		}
		if status != approval.StatusPending {
			req.Status = status
		}
		matched = append(matched, req)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

// Transition moves the request file to the target state directory and
// rewrites its front matter. The source directory, not the editable status
// field, decides legality.
func (s *Store) Transition(_ context.Context, id string, to approval.Status, reason string) (*approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, to, reason, nil)
}

// RecordResult finalizes an approved request with its execution outcome.
func (s *Store) RecordResult(_ context.Context, id string, result approval.ExecutionResult) (*approval.Request, error) {
	to := approval.StatusExecuted
	if !result.Success {
		to = approval.StatusFailed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, to, result.Error, &result)
}

func (s *Store) transitionLocked(id string, to approval.Status, reason string, result *approval.ExecutionResult) (*approval.Request, error) {
	req, canonical, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	if !approval.CanTransition(canonical, to) {
		return nil, fmt.Errorf("%w: %s -> %s for %s", approval.ErrInvalidTransition, canonical, to, id)
	}

	updated := req.Clone()
	approval.ApplyTransition(updated, to, reason, s.now())
	if result != nil {
		res := *result
		updated.Result = &res
	}

	data, err := encode(updated)
	if err != nil {
		return nil, fmt.Errorf("encode request %s: %w", id, err)
	}

	// Write into the target directory via temp file + rename, then drop the
	// old file. A crash between the two leaves a duplicate, never a loss;
	// locate prefers the most advanced state.
	target := s.path(to, id)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return nil, fmt.Errorf("write request file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("move request file: %w", err)
	}
	if err := os.Remove(s.path(canonical, id)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove stale request file for %s: %v", id, err)
	}

	return updated, nil
}

// statusPrecedence orders locate for the crash-duplicate case: the most
// advanced copy wins.
var statusPrecedence = []approval.Status{
	approval.StatusExecuted,
	approval.StatusFailed,
	approval.StatusExpired,
	approval.StatusRejected,
	approval.StatusApproved,
	approval.StatusPending,
}

func (s *Store) locate(id string) (*approval.Request, approval.Status, error) {
	for _, status := range statusPrecedence {
		path := s.path(status, id)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		req, err := s.read(path)
		if err != nil {
			return nil, "", err
		}
		if status != approval.StatusPending {
			// Directory wins over any hand-edit of the front matter.
			req.Status = status
		}
		return req, status, nil
	}
	return nil, "", fmt.Errorf("%w: %s", approval.ErrNotFound, id)
}

func (s *Store) read(path string) (*approval.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request file: %w", err)
	}
	req, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return req, nil
}

// encode renders the request as YAML front matter plus the markdown body.
func encode(req *approval.Request) ([]byte, error) {
	header, err := yaml.Marshal(req)
	if err != nil {
		return nil, err
	}

	body := req.Body
	if body == "" {
		body = defaultBody(req)
	}

	var b strings.Builder
	b.WriteString(frontMatterDelim)
	b.WriteString("\n")
	b.Write(header)
	b.WriteString(frontMatterDelim)
	b.WriteString("\n\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

func decode(data []byte) (*approval.Request, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return nil, fmt.Errorf("missing front matter")
	}
	rest := text[len(frontMatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelim)
	if end < 0 {
		return nil, fmt.Errorf("unterminated front matter")
	}

	var req approval.Request
	if err := yaml.Unmarshal([]byte(rest[:end+1]), &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body := rest[end+len(frontMatterDelim)+1:]
	req.Body = strings.TrimLeft(strings.TrimPrefix(body, "\n"), "\n")
	return &req, nil
}

func defaultBody(req *approval.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Action review: %s\n\n", req.ActionType)
	fmt.Fprintf(&b, "Risk score: **%d/100**\n\n", req.RiskScore)
	b.WriteString("To decide, change `status:` in the header above to `approved` or `rejected`.\n")
	b.WriteString("A rejection may include a `rejection_reason:` line.\n")
	if !req.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "\nUnreviewed requests expire at %s.\n", req.ExpiresAt.Format(time.RFC3339))
	}
	return b.String()
}
