package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dimitrije/starter-api/pkg/dto"
	"github.com/dimitrije/starter-api/pkg/session"
	"go.uber.org/zap"
)

// Watch streams record changes for subjectID to fn until stop is called
// or ctx ends. fn runs on the stream goroutine. stop waits for it to exit.
func (s *StoreClient) Watch(ctx context.Context, subjectID string, fn func(session.RecordResult)) (func(), error) {
	credential, _ := s.active()
	if credential == "" {
		return nil, session.ErrNoCredential
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := s.t.newRequest(ctx, http.MethodGet, userPath(subjectID)+"/events", credential, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// the shared client's timeout would cut the stream
	streamClient := *s.t.http
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, &session.Error{Code: session.CodeStoreUnavailable, Message: "open record stream", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		cancel()
		return nil, responseError(resp)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer resp.Body.Close()
		s.readEvents(resp, subjectID, fn)
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// readEvents parses the event stream line by line. Only "message" events
// carry record changes.
func (s *StoreClient) readEvents(resp *http.Response, subjectID string, fn func(session.RecordResult)) {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)

	event := "message"
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 && event == "message" {
				s.dispatch(data.String(), subjectID, fn)
			}
			event = "message"
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

func (s *StoreClient) dispatch(payload, subjectID string, fn func(session.RecordResult)) {
	var ev dto.RecordEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		s.log.Debug("skip malformed record event", zap.Error(err))
		return
	}
	if ev.Data == nil || ev.Data.SubjectID != subjectID {
		return
	}
	fn(session.RecordResult{Status: session.StatusSuccess, Data: recordOf(ev.Data)})
}
