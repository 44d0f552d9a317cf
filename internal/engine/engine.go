package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/keepsake-ai/keepsake/internal/oracle"
	"github.com/keepsake-ai/keepsake/internal/store"
)

// defaultOracleTimeout bounds every oracle call so a slow provider can never
// block a turn indefinitely.
const defaultOracleTimeout = 30 * time.Second

// Engine orchestrates memory extraction, linking, recall, summarization,
// pruning, and correlation analysis.
type Engine struct {
	DB     *store.DB
	Oracle oracle.Client

	timeout time.Duration

	// linkLocks serializes back-link updates per target memory id so
	// concurrent turns in one session cannot lose edges to each other.
	linkMu    sync.Mutex
	linkLocks map[string]*sync.Mutex

	stopCh chan struct{}
}

// New creates a new Engine. A zero timeout uses the default.
func New(db *store.DB, client oracle.Client, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = defaultOracleTimeout
	}
	return &Engine{
		DB:        db,
		Oracle:    client,
		timeout:   timeout,
		linkLocks: make(map[string]*sync.Mutex),
		stopCh:    make(chan struct{}),
	}
}

// Turn is one interaction arriving from a channel.
type Turn struct {
	SessionID        string
	Modality         string // chat, voice, visual
	UserText         string
	ResponseText     string
	Emotion          string
	EmotionIntensity float64
}

// TurnResult reports what a turn produced.
type TurnResult struct {
	MessageCount int
	Memory       *store.Memory
	Summary      *store.ConversationSummary
	Correlations int
}

// ProcessTurn runs the full per-turn pipeline: append the turn, extract and
// link a candidate memory, fold the window into a summary when due, and run
// correlation analysis for voice turns. Oracle failures never abort the
// pipeline; a store failure on the turn's primary memory record is returned
// after the remaining steps have run.
func (e *Engine) ProcessTurn(ctx context.Context, turn Turn) (*TurnResult, error) {
	if turn.Modality == "" {
		turn.Modality = "chat"
	}

	sess, err := e.DB.InitSession(turn.SessionID, turn.Modality)
	if err != nil {
		return nil, err
	}

	count, err := e.DB.IncrementMessageCount(turn.SessionID)
	if err != nil {
		return nil, err
	}
	if err := e.DB.AddTurn(turn.SessionID, count, turn.Modality, turn.UserText, turn.ResponseText); err != nil {
		return nil, err
	}

	// Emotional context is per-session state, threaded into later prompts.
	// Best-effort: a failed write loses one emotion reading, nothing else.
	if turn.Emotion != "" {
		if err := e.DB.SetSessionEmotion(turn.SessionID, turn.Emotion, turn.EmotionIntensity); err != nil {
			log.Printf("turn: set emotion for %s: %v", turn.SessionID, err)
		}
	}

	result := &TurnResult{MessageCount: count}

	mem, memErr := e.extractAndLink(ctx, turn, sess.LastEmotion)
	result.Memory = mem

	if count > 0 && count%5 == 0 {
		result.Summary = e.summarizeWindow(ctx, turn.SessionID, count)
	}

	if turn.Modality == "voice" {
		result.Correlations = e.analyzeCorrelations(ctx, turn)
	}

	// memErr is nil unless the memory's own create failed (store error);
	// oracle failures were already absorbed as a silent skip.
	return result, memErr
}

// lockFor returns the mutex guarding back-link updates to one memory id.
func (e *Engine) lockFor(id string) *sync.Mutex {
	e.linkMu.Lock()
	defer e.linkMu.Unlock()
	mu, ok := e.linkLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		e.linkLocks[id] = mu
	}
	return mu
}

// oracleCtx derives a bounded context for a single oracle call.
func (e *Engine) oracleCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}

// StartPruneTimer runs the knowledge source pruning batch on a fixed
// interval until Stop is called.
func (e *Engine) StartPruneTimer(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				report, err := e.PruneSources(context.Background())
				if err != nil {
					log.Printf("prune: %v", err)
				} else if report.Reviewed > 0 {
					log.Printf("prune: reviewed %d, deactivated %d, failed %d",
						report.Reviewed, report.Deactivated, report.Failed)
				}
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	close(e.stopCh)
}
