package contact

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"applypilot-engine/internal/domain"
)

func hunterBody(emails ...string) string {
	out := `{"data":{"domain":"initech.com","emails":[`
	for i, e := range emails {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"value":%q}`, e)
	}
	return out + `]}}`
}

func TestResolveByCompanyName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("company") != "Initech" {
			t.Errorf("company = %q", q.Get("company"))
		}
		if q.Get("department") != "hr" {
			t.Errorf("department = %q", q.Get("department"))
		}
		if q.Get("api_key") != "k" {
			t.Errorf("api_key = %q", q.Get("api_key"))
		}
		fmt.Fprint(w, hunterBody("hr@initech.com", "jobs@initech.com"))
	}))
	defer srv.Close()

	c := NewHunterClient(HunterConfig{BaseURL: srv.URL, APIKey: "k"}, nil)
	addr, err := c.Resolve(context.Background(), "Initech")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if addr != "hr@initech.com" {
		t.Errorf("addr = %q, want first email", addr)
	}
}

func TestResolveFallsBackToGuessedDomain(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if co := q.Get("company"); co != "" {
			queries = append(queries, "company="+co)
			fmt.Fprint(w, hunterBody()) // empty result set
			return
		}
		queries = append(queries, "domain="+q.Get("domain"))
		fmt.Fprint(w, hunterBody("talent@vandelayindustries.com"))
	}))
	defer srv.Close()

	c := NewHunterClient(HunterConfig{BaseURL: srv.URL, APIKey: "k"}, nil)
	addr, err := c.Resolve(context.Background(), "Vandelay Industries")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if addr != "talent@vandelayindustries.com" {
		t.Errorf("addr = %q", addr)
	}
	if len(queries) != 2 || queries[1] != "domain=vandelayindustries.com" {
		t.Errorf("queries = %v, want company search then guessed domain", queries)
	}
}

func TestResolveNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, hunterBody())
	}))
	defer srv.Close()

	c := NewHunterClient(HunterConfig{BaseURL: srv.URL, APIKey: "k"}, nil)
	_, err := c.Resolve(context.Background(), "Ghost Co")
	if !errors.Is(err, domain.ErrContactNotFound) {
		t.Fatalf("err = %v, want ErrContactNotFound", err)
	}
}

func TestResolveStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrContactNotFound},
		{http.StatusTooManyRequests, domain.ErrResolverUnavailable},
		{http.StatusInternalServerError, domain.ErrResolverUnavailable},
		{http.StatusUnauthorized, domain.ErrResolverUnavailable},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewHunterClient(HunterConfig{BaseURL: srv.URL, APIKey: "k"}, nil)
			_, err := c.Resolve(context.Background(), "Initech")
			if !errors.Is(err, tt.want) {
				t.Fatalf("status %d: err = %v, want %v", tt.status, err, tt.want)
			}
		})
	}
}
