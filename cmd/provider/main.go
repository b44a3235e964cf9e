// A small SMS-man lookalike for local development. Hands out random numbers
// and starts delivering a code a few polls after purchase.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"brandotp/internal/app/logger"
	mw "brandotp/internal/app/middleware"
	"brandotp/pkg/smsman"
)

func main() {
	// setting up signal capturing
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		osCall := <-stop
		log.Printf("System call: %+v", osCall)
		cancel()
	}()

	l := logger.New(true, true)

	if err := runServer(ctx, "127.0.0.1:8090", l); err != nil {
		l.Fatal().Err(err).Msg("Server run failed")
	}
}

func runServer(ctx context.Context, listenAddr string, l logger.Logger) (err error) {
	sim := newSimulator()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(mw.Log(l))
	r.Get("/get-number", sim.GetNumber)
	r.Get("/get-sms", sim.GetSMS)
	r.Get("/set-status", sim.SetStatus)

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("Listening on %s", listenAddr)
		if err = srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("")
		}
	}()

	log.Printf("Server started")
	<-ctx.Done()
	log.Printf("Server stopped")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer func() {
		cancel()
	}()

	if err = srv.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Printf("Server exited properly")

	return
}

type activation struct {
	number   string
	polls    int
	rejected bool
}

type simulator struct {
	mu     sync.Mutex
	nextID int
	active map[string]*activation
}

func newSimulator() *simulator {
	return &simulator{
		nextID: 1000,
		active: map[string]*activation{},
	}
}

func (s *simulator) GetNumber(w http.ResponseWriter, r *http.Request) {
	out := &smsman.GetNumberResponse{}

	if r.URL.Query().Get("application_id") == "" {
		out.ErrorCode = "wrong_application_id"
		out.ErrorMsg = "application_id is required"
		writeJSON(w, out)
		return
	}

	if rand.Float32() < 0.1 {
		out.ErrorCode = "no_numbers"
		out.ErrorMsg = "no numbers available"
		writeJSON(w, out)
		return
	}

	s.mu.Lock()
	s.nextID++
	id := strconv.Itoa(s.nextID)
	number := fmt.Sprintf("91%08d", rand.Intn(100000000))
	s.active[id] = &activation{number: number}
	s.mu.Unlock()

	out.RequestID = json.Number(id)
	out.Number = number
	writeJSON(w, out)
}

func (s *simulator) GetSMS(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("request_id")
	out := &smsman.GetSMSResponse{RequestID: json.Number(id)}

	s.mu.Lock()
	a, ok := s.active[id]
	if ok && !a.rejected {
		a.polls++
		// deliver after the third poll
		if a.polls >= 3 {
			out.SMSCode = fmt.Sprintf("%06d", rand.Intn(1000000))
			out.SMSText = "Your verification code is " + out.SMSCode
			out.Sender = "VERIFY"
		} else {
			out.Status = "wait_sms"
		}
	}
	s.mu.Unlock()

	if !ok {
		out.ErrorCode = "wrong_request_id"
		out.ErrorMsg = "unknown request"
	}

	writeJSON(w, out)
}

func (s *simulator) SetStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("request_id")
	out := &smsman.SetStatusResponse{RequestID: json.Number(id)}

	s.mu.Lock()
	a, ok := s.active[id]
	if ok {
		a.rejected = true
		out.Success = true
	}
	s.mu.Unlock()

	if !ok {
		out.ErrorCode = "wrong_request_id"
		out.ErrorMsg = "unknown request"
	}

	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	rawJson, _ := json.Marshal(v)
	w.Header().Add("Content-Type", "application/json")
	_, _ = w.Write(rawJson)
}
