package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"spendman/internal/docstore"
	"spendman/internal/log"
)

// CouchTransport replicates against a CouchDB-compatible HTTP endpoint.
// It runs a checkpointed pull (_changes) and push (_bulk_docs) loop; the
// remote's own revision handling provides last-write-wins on conflicts.
type CouchTransport struct {
	Client *http.Client
	Logger *log.Logger

	// PollTimeoutMs bounds the longpoll _changes request in live mode.
	PollTimeoutMs int
}

// NewCouchTransport builds a transport with sane HTTP timeouts.
func NewCouchTransport(logger *log.Logger) *CouchTransport {
	return &CouchTransport{
		Client:        &http.Client{Timeout: 45 * time.Second},
		Logger:        logger.WithComponent(log.ComponentSync),
		PollTimeoutMs: 25000,
	}
}

// statusError is an HTTP-level replication failure.
type statusError struct {
	Code    int
	Name    string
	Message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s (status %d): %s", e.Name, e.Code, e.Message)
}

type couchHandle struct {
	events chan Event
	cancel context.CancelFunc
}

func (h *couchHandle) Events() <-chan Event { return h.events }

// Cancel is safe to call any number of times.
func (h *couchHandle) Cancel() { h.cancel() }

func (h *couchHandle) emit(ev Event) {
	select {
	case h.events <- ev:
	default:
		// Nobody is draining; replication must not block on its own events.
	}
}

// Start opens a replication session. The returned handle's event channel
// closes once the session loop has exited.
func (t *CouchTransport) Start(ctx context.Context, local docstore.Engine, remoteURL string, opts Options) (Handle, error) {
	parsed, err := url.Parse(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported remote scheme %q", parsed.Scheme)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	h := &couchHandle{
		events: make(chan Event, 16),
		cancel: cancel,
	}

	session := strings.Split(uuid.NewString(), "-")[0]
	go t.run(sessionCtx, local, strings.TrimRight(remoteURL, "/"), opts, h, session)

	return h, nil
}

func (t *CouchTransport) run(ctx context.Context, local docstore.Engine, remoteURL string, opts Options, h *couchHandle, session string) {
	defer close(h.events)

	st := &sessionState{pushed: make(map[string]string)}
	delay := 0

	for {
		if ctx.Err() != nil {
			return
		}

		err := t.syncRound(ctx, local, remoteURL, opts, st)
		if err == nil {
			delay = 0
			if !opts.Live {
				return
			}
			// Longpoll inside the next pull does the waiting.
			continue
		}

		if ctx.Err() != nil {
			return
		}

		var se *statusError
		switch {
		case errors.As(err, &se) && (se.Code == 401 || se.Code == 403):
			h.emit(Event{Kind: EventDenied, Status: se.Code, Name: se.Name, Message: se.Message, HasPayload: true})
		case errors.As(err, &se):
			h.emit(Event{Kind: EventError, Status: se.Code, Name: se.Name, Message: se.Message, HasPayload: true})
		default:
			// No HTTP status: the link itself dropped. That is a pause,
			// not a fault, as long as retry is on.
			h.emit(Event{Kind: EventPaused, Name: "connection", Message: err.Error(), HasPayload: true})
		}

		if !opts.Retry {
			return
		}
		if opts.Backoff != nil {
			delay = opts.Backoff(delay)
		} else {
			delay = NextDelay(delay)
		}
		t.Logger.Debug("[sync] retrying", log.FieldSession, session, "delay_ms", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(delay) * time.Millisecond):
		}
	}
}

type sessionState struct {
	since   string
	started bool
	pushed  map[string]string
}

func (t *CouchTransport) syncRound(ctx context.Context, local docstore.Engine, remoteURL string, opts Options, st *sessionState) error {
	if err := t.pull(ctx, local, remoteURL, opts, st); err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	if err := t.push(ctx, local, remoteURL, st); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

type changesResponse struct {
	Results []struct {
		ID      string          `json:"id"`
		Deleted bool            `json:"deleted"`
		Doc     json.RawMessage `json:"doc"`
	} `json:"results"`
	LastSeq json.RawMessage `json:"last_seq"`
}

// pull applies the remote changes feed to the local store. The first round
// reads the backlog immediately; later live rounds longpoll so the loop
// sleeps inside the request instead of busy-waiting.
func (t *CouchTransport) pull(ctx context.Context, local docstore.Engine, remoteURL string, opts Options, st *sessionState) error {
	q := url.Values{}
	q.Set("include_docs", "true")
	q.Set("style", "main_only")
	if st.since != "" {
		q.Set("since", st.since)
	}
	if opts.Live && st.started {
		q.Set("feed", "longpoll")
		q.Set("timeout", fmt.Sprintf("%d", t.PollTimeoutMs))
	}

	var resp changesResponse
	if err := t.request(ctx, http.MethodGet, remoteURL+"/_changes?"+q.Encode(), nil, &resp); err != nil {
		return err
	}
	st.started = true
	if seq := decodeSeq(resp.LastSeq); seq != "" {
		st.since = seq
	}

	for _, change := range resp.Results {
		if strings.HasPrefix(change.ID, "_design/") {
			continue
		}
		if change.Deleted {
			if current, err := local.Get(ctx, change.ID); err == nil {
				if err := local.Remove(ctx, current); err != nil && !errors.Is(err, docstore.ErrNotFound) {
					return fmt.Errorf("apply remote delete of %s: %w", change.ID, err)
				}
			}
			delete(st.pushed, change.ID)
			continue
		}
		if len(change.Doc) == 0 {
			continue
		}
		rev, err := upsertLocal(ctx, local, change.ID, change.Doc)
		if err != nil {
			return fmt.Errorf("apply remote doc %s: %w", change.ID, err)
		}
		// Remember what we just applied so push does not echo it back.
		st.pushed[change.ID] = rev
	}
	return nil
}

// upsertLocal writes the remote body over whatever local revision exists.
func upsertLocal(ctx context.Context, local docstore.Engine, id string, body json.RawMessage) (string, error) {
	stripped, err := stripRev(body)
	if err != nil {
		return "", err
	}
	doc := docstore.Document{ID: id, Body: stripped}
	if current, err := local.Get(ctx, id); err == nil {
		doc.Rev = current.Rev
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return "", err
	}
	return local.Put(ctx, doc)
}

type bulkDocsResponse []struct {
	ID    string `json:"id"`
	Rev   string `json:"rev"`
	Error string `json:"error"`
}

// push uploads local documents the remote has not seen from this session.
// Remote conflicts are skipped: the remote copy wins until a later local
// write bumps the revision again.
func (t *CouchTransport) push(ctx context.Context, local docstore.Engine, remoteURL string, st *sessionState) error {
	docs, err := local.AllDocs(ctx)
	if err != nil {
		return err
	}

	var batch []json.RawMessage
	var batchIDs []string
	for _, doc := range docs {
		if st.pushed[doc.ID] == doc.Rev {
			continue
		}
		stripped, err := stripRev(doc.Body)
		if err != nil {
			return fmt.Errorf("prepare %s for push: %w", doc.ID, err)
		}
		batch = append(batch, stripped)
		batchIDs = append(batchIDs, doc.ID)
	}
	if len(batch) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]any{"docs": batch})
	if err != nil {
		return fmt.Errorf("marshal bulk docs: %w", err)
	}

	var resp bulkDocsResponse
	if err := t.request(ctx, http.MethodPost, remoteURL+"/_bulk_docs", payload, &resp); err != nil {
		return err
	}

	for i, res := range resp {
		if i >= len(batchIDs) {
			break
		}
		if res.Error != "" {
			t.Logger.Debug("[sync] push skipped", log.FieldDocID, batchIDs[i], log.FieldError, res.Error)
		}
	}
	// Mark everything attempted; conflicted docs re-sync after the next
	// local write changes their revision.
	for _, doc := range docs {
		st.pushed[doc.ID] = doc.Rev
	}
	return nil
}

func (t *CouchTransport) request(ctx context.Context, method, u string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var ce struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(data, &ce)
		name := ce.Error
		if name == "" {
			name = http.StatusText(resp.StatusCode)
		}
		return &statusError{Code: resp.StatusCode, Name: name, Message: ce.Reason}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeSeq normalizes the last_seq field, which CouchDB versions encode
// either as a number or a string.
func decodeSeq(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// stripRev removes the _rev field so revision tracking never leaks across
// store instances.
func stripRev(body json.RawMessage) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("decode document body: %w", err)
	}
	delete(m, "_rev")
	return json.Marshal(m)
}
