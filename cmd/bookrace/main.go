// Command bookrace fires concurrent registrations at one slot of a running
// server and reports how many were confirmed.  Against a slot of capacity N
// the confirmed count must never exceed N.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/hyrox-registration/internal/logger"
)

type tally struct {
	mu     sync.Mutex
	status map[int]int
	errs   int
}

func (t *tally) add(code int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.errs++
		return
	}
	t.status[code]++
}

func main() {
	var (
		base     = flag.String("url", "http://localhost:8080", "server base URL")
		slotID   = flag.Int64("slot", 0, "slot id to book")
		n        = flag.Int("n", 50, "number of concurrent submissions")
		partner  = flag.Bool("pair", false, "send a partner with every submission")
		retries  = flag.Int("retries", 0, "resend each submission this many times with the same Idempotency-Key")
		timeout  = flag.Duration("timeout", 10*time.Second, "per-request timeout")
		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()
	log := logger.New(logger.Config{Level: *logLevel, Format: logger.TEXT, Output: os.Stderr})

	if *slotID <= 0 {
		log.Fatal("missing -slot")
	}

	client := &http.Client{Timeout: *timeout}
	target := fmt.Sprintf("%s/v1/slots/%d/registrations", *base, *slotID)
	res := &tally{status: map[int]int{}}

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < *n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, _ := json.Marshal(submission(i, *partner))
			key := uuid.NewString()
			<-start
			for attempt := 0; attempt <= *retries; attempt++ {
				res.add(post(client, target, key, body))
			}
		}(i)
	}
	began := time.Now()
	close(start)
	wg.Wait()

	log.Info("done",
		"requests", *n*(*retries+1),
		"elapsed", time.Since(began).String(),
		"created", res.status[http.StatusCreated],
		"replayed", res.status[http.StatusOK],
		"full", res.status[http.StatusConflict],
		"rejected", res.status[http.StatusUnprocessableEntity],
		"unavailable", res.status[http.StatusServiceUnavailable],
		"rate_limited", res.status[http.StatusTooManyRequests],
		"transport_errors", res.errs,
	)
}

func submission(i int, pair bool) map[string]any {
	m := map[string]any{
		"full_name": fmt.Sprintf("Racer %03d", i),
		"phone":     fmt.Sprintf("+34 600 %03d %03d", i/1000, i%1000),
		"email":     fmt.Sprintf("racer%03d@example.com", i),
		"consent":   true,
	}
	if pair {
		m["partner"] = map[string]string{
			"full_name": fmt.Sprintf("Partner %03d", i),
			"phone":     fmt.Sprintf("+34 611 %03d %03d", i/1000, i%1000),
			"email":     fmt.Sprintf("partner%03d@example.com", i),
		}
	}
	return m
}

func post(client *http.Client, target, key string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
