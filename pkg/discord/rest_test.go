package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *RESTClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewRESTClient("secret", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
}

func TestRESTClientListRoles(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/guilds/g1/roles" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bot secret" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get("X-Audit-Log-Reason") != "" {
			t.Error("reads should not carry an audit reason")
		}
		_, _ = io.WriteString(w, `[{"id":"g1","name":"@everyone","permissions":"1024"},{"id":"r2","name":"Mod","color":255,"position":3}]`)
	})

	roles, err := client.ListRoles(context.Background(), "g1")
	if err != nil {
		t.Fatalf("ListRoles() error = %v", err)
	}
	if len(roles) != 2 || roles[1].Name != "Mod" || roles[1].Color != 255 || roles[0].Permissions != "1024" {
		t.Errorf("unexpected roles: %+v", roles)
	}
}

func TestRESTClientListChannelsNullFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"c1","type":0,"name":"general","topic":null,"parent_id":null,
			"permission_overwrites":[{"id":"g1","type":0,"allow":"0","deny":"2048"}]}]`)
	})

	channels, err := client.ListChannels(context.Background(), "g1")
	if err != nil {
		t.Fatalf("ListChannels() error = %v", err)
	}
	if len(channels) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(channels))
	}
	c := channels[0]
	if c.Topic != "" || c.ParentID != "" || c.Name != "general" {
		t.Errorf("unexpected channel: %+v", c)
	}
	if len(c.PermissionOverwrites) != 1 || c.PermissionOverwrites[0].Deny != "2048" {
		t.Errorf("unexpected overwrites: %+v", c.PermissionOverwrites)
	}
}

func TestRESTClientCreateChannelBody(t *testing.T) {
	var body map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/guilds/g1/channels" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Audit-Log-Reason") == "" {
			t.Error("writes should carry an audit reason")
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"id":"c9","type":2,"name":"lounge","parent_id":"cat1"}`)
	})

	pos := 4
	ch, err := client.CreateChannel(context.Background(), "g1", ChannelParams{
		Name:      "lounge",
		Type:      ChannelTypeVoice,
		ParentID:  "cat1",
		Position:  &pos,
		Topic:     "ignored for voice",
		UserLimit: 10,
	})
	if err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}
	if ch.ID != "c9" || ch.ParentID != "cat1" {
		t.Errorf("unexpected channel: %+v", ch)
	}
	if _, ok := body["topic"]; ok {
		t.Error("voice channel body should not include topic")
	}
	if body["user_limit"] != float64(10) || body["position"] != float64(4) || body["parent_id"] != "cat1" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestRESTClientRoleCreateIsOneRequest(t *testing.T) {
	var requests []string
	var moved []map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			_, _ = io.WriteString(w, `{"id":"r1","name":"Mods","position":1,"permissions":"0"}`)
		case http.MethodPatch:
			_ = json.NewDecoder(r.Body).Decode(&moved)
			_, _ = io.WriteString(w, `[]`)
		}
	})

	role, err := client.CreateRole(context.Background(), "g1", RoleParams{Name: "Mods"})
	if err != nil {
		t.Fatalf("CreateRole() error = %v", err)
	}
	if role.ID != "r1" || len(requests) != 1 {
		t.Fatalf("role = %+v, requests = %v", role, requests)
	}

	if err := client.SetRolePosition(context.Background(), "g1", "r1", 3); err != nil {
		t.Fatalf("SetRolePosition() error = %v", err)
	}
	if requests[1] != "PATCH /guilds/g1/roles" {
		t.Errorf("requests = %v", requests)
	}
	if len(moved) != 1 || moved[0]["id"] != "r1" || moved[0]["position"] != float64(3) {
		t.Errorf("position body = %v", moved)
	}
}

func TestChannelParamsDetachParent(t *testing.T) {
	data, err := json.Marshal(ChannelParams{Name: "general", Type: ChannelTypeText})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var body map[string]interface{}
	_ = json.Unmarshal(data, &body)

	v, ok := body["parent_id"]
	if !ok || v != nil {
		t.Errorf("parent_id = %v (present %v), want explicit null", v, ok)
	}
}

func TestRESTClientErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		header     map[string]string
		body       string
		wantKind   ErrorKind
		wantAfter  time.Duration
		wantCode   int
		wantGlobal bool
	}{
		{
			name:      "rate limited body",
			status:    429,
			body:      `{"message":"You are being rate limited.","retry_after":1.5,"global":false}`,
			wantKind:  KindRateLimited,
			wantAfter: 1500 * time.Millisecond,
		},
		{
			name:      "rate limited header",
			status:    429,
			header:    map[string]string{"Retry-After": "3"},
			wantKind:  KindRateLimited,
			wantAfter: 3 * time.Second,
		},
		{
			name:       "global rate limit",
			status:     429,
			header:     map[string]string{"X-RateLimit-Global": "true"},
			body:       `{"retry_after":0.25}`,
			wantKind:   KindRateLimited,
			wantAfter:  250 * time.Millisecond,
			wantGlobal: true,
		},
		{
			name:     "server error",
			status:   502,
			wantKind: KindServerError,
		},
		{
			name:     "client error with code",
			status:   403,
			body:     `{"message":"Missing Permissions","code":50013}`,
			wantKind: KindClientError,
			wantCode: 50013,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			err := client.DeleteRole(context.Background(), "g1", "r1")
			apiErr, ok := AsAPIError(err)
			if !ok {
				t.Fatalf("expected *APIError, got %T: %v", err, err)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", apiErr.Kind, tt.wantKind)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
			if tt.wantAfter != 0 && apiErr.RetryAfter != tt.wantAfter {
				t.Errorf("RetryAfter = %v, want %v", apiErr.RetryAfter, tt.wantAfter)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", apiErr.Code, tt.wantCode)
			}
			if apiErr.Global != tt.wantGlobal {
				t.Errorf("Global = %v, want %v", apiErr.Global, tt.wantGlobal)
			}
			if apiErr.Method != http.MethodDelete || apiErr.Path != "/guilds/g1/roles/r1" {
				t.Errorf("unexpected request context: %s %s", apiErr.Method, apiErr.Path)
			}
		})
	}
}

func TestRESTClientNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewRESTClient("secret", WithBaseURL(url))
	_, err := client.GetGuild(context.Background(), "g1")

	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Kind != KindNetwork {
		t.Fatalf("expected network APIError, got %v", err)
	}
	if apiErr.Unwrap() == nil {
		t.Error("network error should wrap the transport error")
	}
}

func TestRESTClientCancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetGuild(ctx, "g1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetGuild() error = %v, want context.Canceled", err)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := NewRateLimitedError(2*time.Second, "slow down")
	if got := err.Error(); got != "discord: rate limited, retry after 2s" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := errors.Join(errors.New("context"), NewStatusError(500, "boom"))
	apiErr, ok := AsAPIError(wrapped)
	if !ok || apiErr.Kind != KindServerError {
		t.Errorf("AsAPIError() = %v, %v", apiErr, ok)
	}
}
