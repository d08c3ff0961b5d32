package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/discord"
)

func TestBuildState(t *testing.T) {
	guild := &discord.Guild{ID: testGuildID, Name: "guild"}
	roles := []discord.Role{
		{ID: "2", Name: "Mod [managed-by:iac]", Position: 2, Permissions: "6"},
		{ID: testGuildID, Name: "@everyone", Position: 0, Permissions: "1024"},
		{ID: "3", Name: "Bot", Position: 1, Managed: true, Permissions: "0"},
	}
	channels := []discord.Channel{
		{ID: "21", Type: discord.ChannelTypeText, Name: "chat", ParentID: "10", Position: 1, Topic: "talk " + ManagedMarker,
			PermissionOverwrites: []discord.Overwrite{{ID: "2", Type: discord.OverwriteRole, Allow: "2048", Deny: "0"}}},
		{ID: "10", Type: discord.ChannelTypeCategory, Name: "Main", Position: 0},
		{ID: "22", Type: discord.ChannelTypeVoice, Name: "Voice", Position: 1, Bitrate: 64000},
	}

	fetchedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	state, err := BuildState(guild, roles, channels, fetchedAt)
	if err != nil {
		t.Fatalf("BuildState() error = %v", err)
	}

	if len(state.Roles) != 3 || !state.Roles[0].IsEveryone || state.Roles[0].Name != EveryoneRole {
		t.Fatalf("Expected @everyone first, got %+v", state.Roles)
	}
	if state.Roles[0].Permissions != 1024 {
		t.Errorf("Everyone permissions = %d", state.Roles[0].Permissions)
	}
	if !state.Roles[1].Integration {
		t.Error("Expected Bot to be an integration role")
	}
	if state.Roles[2].Ownership != OwnershipOwned || state.Roles[1].Ownership != OwnershipUnmanaged {
		t.Errorf("Unexpected ownership %s / %s", state.Roles[2].Ownership, state.Roles[1].Ownership)
	}

	if len(state.Categories) != 1 || state.Categories[0].Name != "Main" {
		t.Fatalf("Categories = %+v", state.Categories)
	}
	if len(state.Channels) != 2 {
		t.Fatalf("Channels = %+v", state.Channels)
	}
	chat := state.Channels[0]
	if chat.ID != "21" || chat.ParentName != "Main" || chat.Ownership != OwnershipOwned {
		t.Errorf("Unexpected chat state %+v", chat)
	}
	if len(chat.PermissionOverwrites) != 1 || chat.PermissionOverwrites[0].SubjectName != "Mod [managed-by:iac]" {
		t.Errorf("Unexpected overwrites %+v", chat.PermissionOverwrites)
	}
	if state.Channels[1].Ownership != OwnershipUnmanaged {
		t.Error("Voice should be unmanaged")
	}
	if !state.FetchedAt.Equal(fetchedAt) {
		t.Errorf("FetchedAt = %v", state.FetchedAt)
	}
}

func TestBuildStateRejectsBadBitfield(t *testing.T) {
	guild := &discord.Guild{ID: testGuildID}
	_, err := BuildState(guild, []discord.Role{{ID: "1", Permissions: "lots"}}, nil, time.Now())
	if err == nil {
		t.Error("Expected error for a malformed bitfield")
	}
}

func TestFetchState(t *testing.T) {
	fake := newFakeGuild(testGuildID)
	fake.channels = []discord.Channel{{ID: "10", Type: discord.ChannelTypeCategory, Name: "Main"}}

	state, err := FetchState(context.Background(), fake, testGuildID)
	if err != nil {
		t.Fatalf("FetchState() error = %v", err)
	}
	if state.ID != testGuildID || state.Name != "test guild" {
		t.Errorf("Unexpected guild %q %q", state.ID, state.Name)
	}
	if len(state.Roles) != 1 || len(state.Categories) != 1 || len(state.Channels) != 0 {
		t.Errorf("Unexpected state %+v", state)
	}
}

func TestFetchStateError(t *testing.T) {
	fake := newFakeGuild(testGuildID)
	fake.failNext("ListChannels", discord.NewStatusError(403, "Missing Access"))

	_, err := FetchState(context.Background(), fake, testGuildID)
	if err == nil {
		t.Fatal("Expected error")
	}
	apiErr, ok := discord.AsAPIError(err)
	if !ok || apiErr.Status != 403 {
		t.Errorf("Expected wrapped 403, got %v", err)
	}

	if _, err := FetchState(context.Background(), nil, testGuildID); err == nil {
		t.Error("Expected error for nil reader")
	}
	if _, err := FetchState(context.Background(), fake, ""); !IsValidation(err) {
		t.Errorf("Expected validation error for empty guild id, got %v", err)
	}
}

func TestFromAPIError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantClass ErrorClass
		wantCode  string
	}{
		{"rate limited", discord.NewRateLimitedError(time.Second, "slow"), ErrorClassThrottled, ErrCodeRateLimited},
		{"server", discord.NewStatusError(503, "unavailable"), ErrorClassTransient, ErrCodeRemoteFailed},
		{"network", discord.NewNetworkError(errors.New("reset")), ErrorClassTransient, ErrCodeTimeout},
		{"forbidden", discord.NewStatusError(403, "no"), ErrorClassPermanent, ErrCodePermissionDenied},
		{"not found", discord.NewStatusError(404, "gone"), ErrorClassPermanent, ErrCodeNotFound},
		{"conflict", discord.NewStatusError(409, "busy"), ErrorClassConflict, ErrCodeConflict},
		{"bad request", discord.NewStatusError(400, "bad"), ErrorClassPermanent, ErrCodeRemoteFailed},
		{"foreign", errors.New("boom"), ErrorClassTransient, ""},
		{"already classified", NewValidationError("x"), ErrorClassPermanent, ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromAPIError(tt.err)
			if got.Class != tt.wantClass || got.Code != tt.wantCode {
				t.Errorf("FromAPIError() = %s/%s, want %s/%s", got.Class, got.Code, tt.wantClass, tt.wantCode)
			}
			if !errors.Is(got, tt.err) && got != tt.err {
				t.Error("Expected the original error in the chain")
			}
		})
	}

	if FromAPIError(nil) != nil {
		t.Error("Expected nil for nil error")
	}
}

func TestEngineErrorHelpers(t *testing.T) {
	err := NewThrottledError("slow", nil).WithCode(ErrCodeRateLimited).WithResource("Mod").WithOperation("create")
	if !IsThrottled(err) || IsTransient(err) || IsPermanent(err) || IsConflict(err) {
		t.Error("Class helpers disagree")
	}
	if ErrorCode(err) != ErrCodeRateLimited {
		t.Errorf("ErrorCode() = %q", ErrorCode(err))
	}
	want := "[throttled] slow (resource=Mod, operation=create)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, &EngineError{Class: ErrorClassThrottled, Code: ErrCodeRateLimited}) {
		t.Error("errors.Is should match on class and code")
	}
}
