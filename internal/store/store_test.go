package store

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/lcrispim/hush/internal/status"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUpsertChatAndGet(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertChat(&Chat{ID: "c1", Title: "Trip planning", MetadataRev: 1}); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetChat("c1")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Title != "Trip planning" {
		t.Fatalf("chat = %+v, want title Trip planning", c)
	}
}

func TestUpsertChatRevisionGuard(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertChat(&Chat{ID: "c1", Title: "new", MetadataRev: 5}); err != nil {
		t.Fatal(err)
	}
	// A stale echo with an older revision must be discarded.
	if err := db.UpsertChat(&Chat{ID: "c1", Title: "old", MetadataRev: 3}); err != nil {
		t.Fatal(err)
	}
	c, _ := db.GetChat("c1")
	if c.Title != "new" || c.MetadataRev != 5 {
		t.Errorf("chat = %q rev %d, want new rev 5", c.Title, c.MetadataRev)
	}

	// An equal-or-newer revision applies.
	if err := db.UpsertChat(&Chat{ID: "c1", Title: "newer", MetadataRev: 6}); err != nil {
		t.Fatal(err)
	}
	c, _ = db.GetChat("c1")
	if c.Title != "newer" {
		t.Errorf("title = %q, want newer", c.Title)
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	db := testDB(t)
	m := &Message{ChatID: "c1", MessageID: "m1", Role: RoleUser, Status: status.Sending, Seq: 1, BodyCiphertext: []byte("ct")}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	msgs, err := db.ListMessages("c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
}

func TestUpsertMessageNeverRegressesStatus(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertMessage(&Message{ChatID: "c1", MessageID: "m1", Role: RoleAssistant, Status: status.Synced, Seq: 2}); err != nil {
		t.Fatal(err)
	}
	// A late streaming write must not pull the message back.
	if err := db.UpsertMessage(&Message{ChatID: "c1", MessageID: "m1", Role: RoleAssistant, Status: status.Streaming}); err != nil {
		t.Fatal(err)
	}
	m, _ := db.GetMessage("c1", "m1")
	if m.Status != status.Synced {
		t.Errorf("status = %s, want synced", m.Status)
	}
}

func TestUpsertMessageMergePreservesFields(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertMessage(&Message{
		ChatID: "c1", MessageID: "m1", Role: RoleAssistant,
		Status: status.Streaming, Seq: 4, ParentMessageID: "u1",
		BodyCiphertext: []byte("cumulative"),
	}); err != nil {
		t.Fatal(err)
	}
	// A status-only update must not blank body, seq, or parent.
	if err := db.UpsertMessage(&Message{ChatID: "c1", MessageID: "m1", Role: RoleAssistant, Status: status.Synced}); err != nil {
		t.Fatal(err)
	}
	m, _ := db.GetMessage("c1", "m1")
	if m.Status != status.Synced {
		t.Errorf("status = %s, want synced", m.Status)
	}
	if !bytes.Equal(m.BodyCiphertext, []byte("cumulative")) || m.Seq != 4 || m.ParentMessageID != "u1" {
		t.Errorf("merge lost fields: %+v", m)
	}
}

func TestListMessagesSeqOrder(t *testing.T) {
	db := testDB(t)
	// Insert out of order; display order follows seq, not insert order.
	for _, m := range []Message{
		{ChatID: "c1", MessageID: "m3", Role: RoleUser, Status: status.Synced, Seq: 3},
		{ChatID: "c1", MessageID: "m1", Role: RoleUser, Status: status.Synced, Seq: 1},
		{ChatID: "c1", MessageID: "m2", Role: RoleAssistant, Status: status.Synced, Seq: 2},
	} {
		if err := db.UpsertMessage(&m); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := db.ListMessages("c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"m1", "m2", "m3"}
	for i, id := range want {
		if msgs[i].MessageID != id {
			t.Errorf("msgs[%d] = %s, want %s", i, msgs[i].MessageID, id)
		}
	}
}

func TestLastMessage(t *testing.T) {
	db := testDB(t)
	if m, err := db.LastMessage("empty"); err != nil || m != nil {
		t.Fatalf("LastMessage(empty) = %v, %v; want nil, nil", m, err)
	}
	_ = db.UpsertMessage(&Message{ChatID: "c1", MessageID: "m1", Role: RoleUser, Status: status.Synced, Seq: 1})
	_ = db.UpsertMessage(&Message{ChatID: "c1", MessageID: "m2", Role: RoleAssistant, Status: status.Streaming, Seq: 2})
	m, err := db.LastMessage("c1")
	if err != nil {
		t.Fatal(err)
	}
	if m.MessageID != "m2" {
		t.Errorf("tail = %s, want m2", m.MessageID)
	}
}

func TestRequeueAndMarkWaiting(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertMessage(&Message{ChatID: "c1", MessageID: "m1", Role: RoleUser, Status: status.Sending, Seq: 1})
	_ = db.UpsertMessage(&Message{ChatID: "c1", MessageID: "m2", Role: RoleUser, Status: status.Synced, Seq: 2})

	n, err := db.MarkWaiting()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("MarkWaiting affected %d rows, want 1", n)
	}
	m, _ := db.GetMessage("c1", "m1")
	if m.Status != status.WaitingForInternet {
		t.Errorf("status = %s, want waiting_for_internet", m.Status)
	}

	n, err = db.RequeueWaiting()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("RequeueWaiting affected %d rows, want 1", n)
	}
	m, _ = db.GetMessage("c1", "m1")
	if m.Status != status.Sending {
		t.Errorf("status = %s, want sending", m.Status)
	}
	// The synced message was untouched throughout.
	m2, _ := db.GetMessage("c1", "m2")
	if m2.Status != status.Synced {
		t.Errorf("synced message status = %s, want synced", m2.Status)
	}
}

func TestDraftVersionResolution(t *testing.T) {
	db := testDB(t)

	applied, err := db.SaveDraft("c1", []byte("v3"), 3)
	if err != nil {
		t.Fatal(err)
	}
	if !applied {
		t.Fatal("first draft write should apply")
	}

	// Older incoming version is discarded.
	applied, err = db.SaveDraft("c1", []byte("v2"), 2)
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Error("version 2 must not overwrite version 3")
	}
	d, _ := db.LoadDraft("c1")
	if string(d.Ciphertext) != "v3" || d.Version != 3 {
		t.Errorf("draft = %q v%d, want v3 v3", d.Ciphertext, d.Version)
	}

	// Newer incoming version replaces.
	applied, err = db.SaveDraft("c1", []byte("v4"), 4)
	if err != nil {
		t.Fatal(err)
	}
	if !applied {
		t.Error("version 4 must overwrite version 3")
	}
	d, _ = db.LoadDraft("c1")
	if string(d.Ciphertext) != "v4" || d.Version != 4 {
		t.Errorf("draft = %q v%d, want v4 v4", d.Ciphertext, d.Version)
	}
}

func TestClearDraftBumpsVersion(t *testing.T) {
	db := testDB(t)
	_, _ = db.SaveDraft("c1", []byte("content"), 2)
	if err := db.ClearDraft("c1"); err != nil {
		t.Fatal(err)
	}
	d, err := db.LoadDraft("c1")
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Errorf("draft = %+v, want nil after clear", d)
	}
	// A stale echo of the cleared content must not resurrect it.
	applied, _ := db.SaveDraft("c1", []byte("content"), 2)
	if applied {
		t.Error("stale draft echo applied after clear")
	}
}

func TestChatKeyFirstWriterWins(t *testing.T) {
	db := testDB(t)
	if k, err := db.GetChatKey("c1"); err != nil || k != nil {
		t.Fatalf("GetChatKey = %v, %v; want nil, nil", k, err)
	}
	if err := db.PutChatKey("c1", []byte("wrapped-a")); err != nil {
		t.Fatal(err)
	}
	if err := db.PutChatKey("c1", []byte("wrapped-b")); err != nil {
		t.Fatal(err)
	}
	k, err := db.GetChatKey("c1")
	if err != nil {
		t.Fatal(err)
	}
	if string(k) != "wrapped-a" {
		t.Errorf("key = %q, want wrapped-a (first writer)", k)
	}
}

func TestSuggestionCRUD(t *testing.T) {
	db := testDB(t)
	_ = db.PutSuggestion(&Suggestion{ID: "s1", Kind: SuggestionNewChat, BodyCiphertext: []byte("a")})
	_ = db.PutSuggestion(&Suggestion{ID: "s2", Kind: SuggestionNewChat, BodyCiphertext: []byte("b")})

	list, err := db.ListSuggestions(SuggestionNewChat)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(list))
	}

	if err := db.DeleteSuggestion("s1"); err != nil {
		t.Fatal(err)
	}
	list, _ = db.ListSuggestions(SuggestionNewChat)
	if len(list) != 1 || list[0].ID != "s2" {
		t.Errorf("after delete: %+v, want only s2", list)
	}

	if err := db.ReplaceSuggestions(SuggestionNewChat, []Suggestion{{ID: "s3", BodyCiphertext: []byte("c")}}); err != nil {
		t.Fatal(err)
	}
	list, _ = db.ListSuggestions(SuggestionNewChat)
	if len(list) != 1 || list[0].ID != "s3" {
		t.Errorf("after replace: %+v, want only s3", list)
	}
}

func TestDeleteChatCascades(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertChat(&Chat{ID: "c1", MetadataRev: 1})
	_ = db.UpsertMessage(&Message{ChatID: "c1", MessageID: "m1", Role: RoleUser, Status: status.Synced, Seq: 1})
	_ = db.PutChatKey("c1", []byte("wrapped"))

	if err := db.DeleteChat("c1"); err != nil {
		t.Fatal(err)
	}
	if c, _ := db.GetChat("c1"); c != nil {
		t.Error("chat still present after delete")
	}
	if msgs, _ := db.ListMessages("c1", 10); len(msgs) != 0 {
		t.Error("messages still present after delete")
	}
	if k, _ := db.GetChatKey("c1"); k != nil {
		t.Error("chat key still present after delete")
	}
}

func TestCheckpoints(t *testing.T) {
	db := testDB(t)
	if v, err := db.GetCheckpoint("last_reconcile"); err != nil || v != "" {
		t.Fatalf("GetCheckpoint = %q, %v; want empty, nil", v, err)
	}
	if err := db.SetCheckpoint("last_reconcile", "12345"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetCheckpoint("last_reconcile", "12399"); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetCheckpoint("last_reconcile")
	if err != nil {
		t.Fatal(err)
	}
	if v != "12399" {
		t.Errorf("checkpoint = %q, want 12399", v)
	}
}

func TestWipe(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertChat(&Chat{ID: "c1", MetadataRev: 1})
	_ = db.UpsertMessage(&Message{ChatID: "c1", MessageID: "m1", Role: RoleUser, Status: status.Synced, Seq: 1})
	_ = db.SetCheckpoint("k", "v")

	if err := db.Wipe(); err != nil {
		t.Fatal(err)
	}
	if chats, _ := db.ListChats(10, 0); len(chats) != 0 {
		t.Error("chats survived wipe")
	}
	if v, _ := db.GetCheckpoint("k"); v != "" {
		t.Error("checkpoint survived wipe")
	}
}

func TestReplaceMessages(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertMessage(&Message{ChatID: "c1", MessageID: "old", Role: RoleUser, Status: status.Synced, Seq: 1})

	err := db.ReplaceMessages("c1", []Message{
		{MessageID: "n1", Role: RoleUser, Status: status.Synced, Seq: 1},
		{MessageID: "n2", Role: RoleAssistant, Status: status.Synced, Seq: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	msgs, _ := db.ListMessages("c1", 10)
	if len(msgs) != 2 || msgs[0].MessageID != "n1" || msgs[1].MessageID != "n2" {
		t.Errorf("messages after replace: %+v", msgs)
	}
}

func TestDraftOnlyRowHiddenFromChatList(t *testing.T) {
	db := testDB(t)
	if _, err := db.SaveDraft("no-chat-yet", []byte("ct"), 1); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 0 {
		t.Errorf("got %d chats, want 0: a draft-only row is not a chat", len(chats))
	}

	// The draft itself stays loadable.
	d, err := db.LoadDraft("no-chat-yet")
	if err != nil || d == nil {
		t.Fatalf("draft = %+v err=%v, want loadable", d, err)
	}

	// Once the chat gains real metadata it joins the list.
	if err := db.UpsertChat(&Chat{ID: "no-chat-yet", Title: "T", MetadataRev: 1}); err != nil {
		t.Fatal(err)
	}
	chats, err = db.ListChats(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 {
		t.Errorf("got %d chats after metadata arrived, want 1", len(chats))
	}
}
