package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"theralink-server/internal/adherence"
)

type stubProvider struct {
	text  string
	err   error
	delay time.Duration
}

func (s stubProvider) Name() string { return "stub" }

func (s stubProvider) Generate(ctx context.Context, _ Input) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, s.err
}

type panicProvider struct{}

func (panicProvider) Name() string { return "panic" }

func (panicProvider) Generate(context.Context, Input) (string, error) { panic("boom") }

func missed(counts map[string]int) map[string]adherence.MissedDayInfo {
	out := make(map[string]adherence.MissedDayInfo, len(counts))
	for med, n := range counts {
		info := adherence.MissedDayInfo{TotalMissed: n}
		for i := 0; i < n; i++ {
			info.MissedDays = append(info.MissedDays, adherence.MissedDay{Date: adherence.Date(2024, 1, i+1), Medication: med})
		}
		out[med] = info
	}
	return out
}

func TestRuleProvider_ByRisk(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want string
	}{
		{"low", Input{Percentage: 92, Risk: adherence.RiskLow}, "Great work"},
		{"medium", Input{Percentage: 70, Risk: adherence.RiskMedium}, "same time every day"},
		{"high names medication", Input{Percentage: 30, Risk: adherence.RiskHigh, MissedDays: missed(map[string]int{"Metformin": 4, "Aspirin": 1})}, "missed Metformin 4 times"},
		{"high without misses", Input{Percentage: 0, Risk: adherence.RiskHigh}, "log your doses"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RuleProvider{}.Generate(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("message %q does not contain %q", got, tt.want)
			}
		})
	}
}

func TestMostMissed_TieGoesAlphabetical(t *testing.T) {
	med, n, ok := MostMissed(missed(map[string]int{"Zinc": 2, "Aspirin": 2, "Iron": 1}))
	if !ok || med != "Aspirin" || n != 2 {
		t.Errorf("got %s %d %v", med, n, ok)
	}
	if _, _, ok := MostMissed(missed(map[string]int{"A": 0})); ok {
		t.Error("expected ok=false when nothing missed")
	}
}

func TestGenerator_UsesPrimary(t *testing.T) {
	g := NewGenerator(stubProvider{text: "  hello  "}, time.Second, zerolog.Nop())
	msg := g.Generate(context.Background(), Input{Risk: adherence.RiskLow})
	if msg.Text != "hello" || msg.Provider != "stub" || msg.Fallback {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestGenerator_FallsBack(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
	}{
		{"error", stubProvider{err: errors.New("quota exceeded")}},
		{"empty", stubProvider{text: "   "}},
		{"timeout", stubProvider{text: "late", delay: time.Second}},
		{"panic", panicProvider{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(tt.provider, 20*time.Millisecond, zerolog.Nop())
			start := time.Now()
			msg := g.Generate(context.Background(), Input{Percentage: 90, Risk: adherence.RiskLow})
			if time.Since(start) > 500*time.Millisecond {
				t.Errorf("generator blocked for %s", time.Since(start))
			}
			if !msg.Fallback || msg.Provider != "rules" || msg.Text == "" {
				t.Errorf("expected rule-based fallback, got %+v", msg)
			}
		})
	}
}

func TestGenerator_RulesOnly(t *testing.T) {
	g := NewGenerator(nil, 0, zerolog.Nop())
	msg := g.Generate(context.Background(), Input{Percentage: 65, Risk: adherence.RiskMedium})
	if msg.Provider != "rules" || msg.Fallback {
		t.Errorf("unexpected message %+v", msg)
	}
	if name, err := g.Ping(context.Background()); err != nil || name != "rules" {
		t.Errorf("ping: %s %v", name, err)
	}
}

func TestGenerator_PingReportsPrimaryFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
		wantErr  string
	}{
		{"ok", stubProvider{text: "fine"}, ""},
		{"error", stubProvider{err: errors.New("quota exceeded")}, "quota exceeded"},
		{"timeout", stubProvider{text: "late", delay: time.Second}, "deadline exceeded"},
		{"panic", panicProvider{}, "provider panicked: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(tt.provider, 20*time.Millisecond, zerolog.Nop())
			name, err := g.Ping(context.Background())
			if name != tt.provider.Name() {
				t.Errorf("name = %q, want %q", name, tt.provider.Name())
			}
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("unexpected error %v", err)
			case tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)):
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestGeminiProvider(t *testing.T) {
	var gotPrompt, gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotPrompt = req.Contents[0].Parts[0].Text
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":" Keep it up! "}]}}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "", "secret")
	text, err := p.Generate(context.Background(), Input{Percentage: 55, Risk: adherence.RiskHigh, MissedDays: missed(map[string]int{"Metformin": 2})})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Keep it up!" {
		t.Errorf("got %q", text)
	}
	if gotPath != "/v1beta/models/gemini-pro:generateContent" || gotKey != "secret" {
		t.Errorf("unexpected request %s key=%s", gotPath, gotKey)
	}
	if !strings.Contains(gotPrompt, "risk = High") || !strings.Contains(gotPrompt, "Metformin") {
		t.Errorf("unexpected prompt %q", gotPrompt)
	}
}

func TestGeminiProvider_ErrorStatusFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "gemini-pro", "k")
	if _, err := p.Generate(context.Background(), Input{}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
	msg := NewGenerator(p, time.Second, zerolog.Nop()).Generate(context.Background(), Input{Risk: adherence.RiskMedium})
	if !msg.Fallback {
		t.Errorf("expected fallback, got %+v", msg)
	}
}
