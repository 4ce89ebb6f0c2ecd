package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hydrobot/internal/domain"
	logx "hydrobot/pkg/logx"
)

// fileStore keeps state in memory and makes it durable with two files:
//   - <prefix>.snapshot.json  (full state, rewritten on compaction)
//   - <prefix>.journal.jsonl  (append-only ops since the last snapshot)
type fileStore struct {
	log logx.Logger
	now func() time.Time

	mu           sync.Mutex
	snapshotPath string
	journal      *os.File
	writes       int
	compactEvery int

	subs map[int64]subscriberRow
	msgs map[string]messageRow
}

type fileSnapshot struct {
	Subscribers []subscriberRow `json:"subscribers"`
	Messages    []messageRow    `json:"messages"`
}

const (
	opSubPut = "sub.put"
	opSubDel = "sub.del"
	opMsgPut = "msg.put"
	opMsgDel = "msg.del"
)

type journalOp struct {
	Op      string         `json:"op"`
	Sub     *subscriberRow `json:"sub,omitempty"`
	Msg     *messageRow    `json:"msg,omitempty"`
	UserID  int64          `json:"user_id,omitempty"`
	MsgType string         `json:"message_type,omitempty"`
}

func openFile(cfg Config, log logx.Logger, now func() time.Time) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	s := &fileStore{
		log:          log,
		now:          now,
		snapshotPath: prefix + ".snapshot.json",
		compactEvery: 500,
		subs:         map[int64]subscriberRow{},
		msgs:         map[string]messageRow{},
	}
	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	journalPath := prefix + ".journal.jsonl"
	if err := s.replayJournal(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("replay journal: %w", err)
	}
	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	s.journal = jf
	return s, nil
}

func (s *fileStore) loadSnapshot() error {
	b, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		return err
	}
	var snap fileSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		// Move it aside so the next compaction cannot overwrite it.
		aside := s.snapshotPath + ".corrupt"
		if rerr := os.Rename(s.snapshotPath, aside); rerr != nil {
			return fmt.Errorf("snapshot unreadable (%v) and could not be moved aside: %w", err, rerr)
		}
		s.log.Warn("snapshot unreadable; moved aside, starting from journal only",
			logx.String("path", s.snapshotPath),
			logx.String("moved_to", aside),
			logx.Err(err),
		)
		return nil
	}
	for _, r := range snap.Subscribers {
		s.subs[r.UserID] = r
	}
	for _, r := range snap.Messages {
		key := canonicalMessageKey(r.Type)
		if _, taken := s.msgs[key]; taken && key != r.Type {
			continue
		}
		r.Type = key
		s.msgs[key] = r
	}
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var op journalOp
		if err := json.Unmarshal(sc.Bytes(), &op); err != nil {
			s.log.Warn("journal line skipped", logx.Int("line", line), logx.Err(err))
			continue
		}
		s.applyLocked(op)
	}
	return sc.Err()
}

func (s *fileStore) applyLocked(op journalOp) {
	switch op.Op {
	case opSubPut:
		if op.Sub != nil {
			if prev, ok := s.subs[op.Sub.UserID]; ok && prev.CreatedAt != "" {
				op.Sub.CreatedAt = prev.CreatedAt
			}
			s.subs[op.Sub.UserID] = *op.Sub
		}
	case opSubDel:
		delete(s.subs, op.UserID)
	case opMsgPut:
		if op.Msg != nil {
			r := *op.Msg
			r.Type = canonicalMessageKey(r.Type)
			s.msgs[r.Type] = r
		}
	case opMsgDel:
		delete(s.msgs, canonicalMessageKey(op.MsgType))
	}
}

// commit appends op to the journal, then applies it in memory.
func (s *fileStore) commit(op journalOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(op)
}

func (s *fileStore) commitLocked(op journalOp) error {
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(op); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	s.applyLocked(op)
	s.writes++
	if s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compaction failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	snap := fileSnapshot{
		Subscribers: make([]subscriberRow, 0, len(s.subs)),
		Messages:    make([]messageRow, 0, len(s.msgs)),
	}
	for _, r := range s.subs {
		snap.Subscribers = append(snap.Subscribers, r)
	}
	for _, r := range s.msgs {
		snap.Messages = append(snap.Messages, r)
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	cerr := s.compactLocked()
	err := s.journal.Close()
	s.journal = nil
	if cerr != nil {
		return cerr
	}
	return err
}

func (s *fileStore) LoadAll(ctx context.Context) ([]domain.Subscriber, []domain.CustomMessage, error) {
	_ = ctx
	now := s.now()
	s.mu.Lock()
	if s.journal == nil {
		s.mu.Unlock()
		return nil, nil, ErrClosed
	}
	subRows := make([]subscriberRow, 0, len(s.subs))
	for _, r := range s.subs {
		subRows = append(subRows, r)
	}
	s.mu.Unlock()

	subs := make([]domain.Subscriber, 0, len(subRows))
	for _, r := range subRows {
		subs = append(subs, decodeSubscriber(r, now, s.log))
	}
	sortSubscribers(subs)

	msgs, err := s.ListCustomMessages(ctx)
	if err != nil {
		return nil, nil, err
	}
	return subs, msgs, nil
}

func (s *fileStore) UpsertSubscriber(ctx context.Context, sub domain.Subscriber) error {
	_ = ctx
	r := encodeSubscriber(sub, s.now())
	return s.commit(journalOp{Op: opSubPut, Sub: &r})
}

func (s *fileStore) DeleteSubscriber(ctx context.Context, userID int64) error {
	_ = ctx
	return s.commit(journalOp{Op: opSubDel, UserID: userID})
}

func (s *fileStore) UpsertCustomMessage(ctx context.Context, m domain.CustomMessage) error {
	_ = ctx
	r := encodeMessage(m, s.now())
	return s.commit(journalOp{Op: opMsgPut, Msg: &r})
}

func (s *fileStore) DeleteCustomMessage(ctx context.Context, t domain.MessageType) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return false, ErrClosed
	}
	if _, ok := s.msgs[string(t)]; !ok {
		return false, nil
	}
	if err := s.commitLocked(journalOp{Op: opMsgDel, MsgType: string(t)}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStore) GetCustomMessage(ctx context.Context, t domain.MessageType) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return "", false, ErrClosed
	}
	r, ok := s.msgs[string(t)]
	if !ok {
		return "", false, nil
	}
	return r.Text, true, nil
}

func (s *fileStore) ListCustomMessages(ctx context.Context) ([]domain.CustomMessage, error) {
	_ = ctx
	s.mu.Lock()
	if s.journal == nil {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	rows := make([]messageRow, 0, len(s.msgs))
	for _, r := range s.msgs {
		rows = append(rows, r)
	}
	s.mu.Unlock()

	out := make([]domain.CustomMessage, 0, len(rows))
	for _, r := range rows {
		if m, ok := decodeMessage(r, s.log); ok {
			out = append(out, m)
		}
	}
	sortMessages(out)
	return out, nil
}
