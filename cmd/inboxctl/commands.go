package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/inbox/internal/classify"
	"github.com/matheus3301/inbox/internal/model"
)

type conversationOut struct {
	ContactID    string    `json:"contact_id"`
	Name         string    `json:"name"`
	Bucket       string    `json:"bucket"`
	Status       string    `json:"status"`
	Unread       int       `json:"unread"`
	Agent        string    `json:"agent,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	Preview      string    `json:"preview,omitempty"`
}

type messageOut struct {
	ID        string    `json:"id"`
	Direction string    `json:"direction"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func toMessageOut(m model.Message) messageOut {
	return messageOut{
		ID:        m.ID,
		Direction: string(m.Direction),
		Type:      string(m.Type),
		Status:    string(m.Status),
		TicketID:  m.TicketID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// cmdStatus reads the daemon's debug endpoint.
func cmdStatus(ctx context.Context, e *env, jsonOut bool) error {
	addr := e.cfg.Debug.Addr
	if addr == "" {
		return errors.New("debug.addr is not configured; the daemon serves no state")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/state", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if jsonOut {
		_, err := os.Stdout.Write(body)
		return err
	}

	var st struct {
		Link struct {
			State    string `json:"state"`
			Attempts int    `json:"attempts"`
		} `json:"link"`
		Conversations int            `json:"conversations"`
		Buckets       map[string]int `json:"buckets"`
		LastError     string         `json:"last_error"`
		Loading       struct {
			Sending int `json:"sending"`
		} `json:"loading"`
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	fmt.Printf("Link:          %s", strings.ToLower(st.Link.State))
	if st.Link.Attempts > 0 {
		fmt.Printf(" (attempt %d)", st.Link.Attempts)
	}
	fmt.Println()
	fmt.Printf("Conversations: %d\n", st.Conversations)
	for _, b := range classify.Order {
		fmt.Printf("  %-22s %d\n", b, st.Buckets[b.String()])
	}
	fmt.Printf("Sending:       %d\n", st.Loading.Sending)
	if st.LastError != "" {
		fmt.Printf("Last error:    %s\n", st.LastError)
	}
	return nil
}

func cmdConversations(ctx context.Context, e *env, jsonOut bool) error {
	if err := e.st.LoadConversations(ctx); err != nil {
		return err
	}
	groups := e.st.GroupConversations()
	byBucket := make(map[classify.Bucket][]model.Conversation)
	for _, c := range e.st.Conversations() {
		b := groups.Of(c.Contact.ID)
		byBucket[b] = append(byBucket[b], c)
	}
	var out []conversationOut
	for _, b := range append(append([]classify.Bucket(nil), classify.Order...), classify.BucketNone) {
		for _, c := range byBucket[b] {
			o := conversationOut{
				ContactID:    c.Contact.ID,
				Name:         c.Contact.DisplayName(),
				Bucket:       b.String(),
				Status:       string(c.Status),
				Unread:       c.UnreadCount,
				Agent:        c.AssignedAgent,
				LastActivity: c.LastActivity,
			}
			if c.LastMessage != nil {
				o.Preview = c.LastMessage.Preview(60)
			}
			out = append(out, o)
		}
	}
	if jsonOut {
		outputJSON(out)
		return nil
	}
	if len(out) == 0 {
		fmt.Println("No conversations.")
		return nil
	}
	for _, o := range out {
		fmt.Printf("%-20s %-10s %-24s %3d  %s\n", o.Bucket, o.ContactID, o.Name, o.Unread, o.Preview)
	}
	return nil
}

func cmdMessages(ctx context.Context, e *env, contactID string, jsonOut bool) error {
	key := model.ContactKey(contactID)
	if err := e.st.LoadMessages(ctx, key, 1, false); err != nil {
		return err
	}
	msgs := e.st.Messages(key)
	if jsonOut {
		out := make([]messageOut, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, toMessageOut(m))
		}
		outputJSON(out)
		return nil
	}
	for _, m := range msgs {
		who := "contact"
		if m.Direction == model.Outgoing {
			who = "you"
		}
		fmt.Printf("%s %-7s %-9s %s\n", m.CreatedAt.Local().Format(time.DateTime), who, m.Status, m.Preview(0))
	}
	if c := e.st.Cursor(key); c.HasMore {
		fmt.Println("(older messages not shown)")
	}
	return nil
}

func cmdSend(ctx context.Context, e *env, contactID, text string, jsonOut bool) error {
	return send(ctx, e, model.OutgoingMessage{ContactID: contactID, Type: model.TypeText, Content: text}, jsonOut)
}

func cmdAttach(ctx context.Context, e *env, contactID, path, caption string, jsonOut bool) error {
	att, typ, err := model.AttachmentFromFile(path)
	if err != nil {
		return err
	}
	return send(ctx, e, model.OutgoingMessage{ContactID: contactID, Type: typ, Content: caption, Attachment: att}, jsonOut)
}

func send(ctx context.Context, e *env, out model.OutgoingMessage, jsonOut bool) error {
	m, err := e.st.SendMessage(ctx, out)
	if err != nil {
		return err
	}
	if jsonOut {
		outputJSON(toMessageOut(m))
		return nil
	}
	fmt.Printf("Sent %s (%s)\n", m.ID, m.Status)
	return nil
}

func cmdSearch(ctx context.Context, e *env, q string, jsonOut bool) error {
	results, err := e.st.Search(ctx, q)
	if err != nil {
		return err
	}
	if jsonOut {
		out := make([]messageOut, 0, len(results))
		for _, m := range results {
			out = append(out, toMessageOut(m))
		}
		outputJSON(out)
		return nil
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, m := range results {
		fmt.Printf("%-10s %s  %s\n", m.ContactID, m.CreatedAt.Local().Format(time.DateTime), m.Preview(80))
	}
	return nil
}

// cmdDraft prints the draft, or replaces it when text is given. An empty
// text argument clears it.
func cmdDraft(ctx context.Context, e *env, contactID string, text []string) error {
	if len(text) > 0 {
		return e.st.SaveDraft(ctx, contactID, strings.Join(text, " "))
	}
	body, err := e.st.Draft(ctx, contactID)
	if err != nil {
		return err
	}
	fmt.Println(body)
	return nil
}

func cmdFailed(e *env, contactID string, jsonOut bool) error {
	entries, err := e.st.FailedSends(contactID)
	if err != nil {
		return err
	}
	if jsonOut {
		outputJSON(entries)
		return nil
	}
	if len(entries) == 0 {
		fmt.Println("No failed sends.")
		return nil
	}
	for _, f := range entries {
		fmt.Printf("%s  %s  %s\n", f.TempID, f.Body, f.Error)
	}
	return nil
}

func cmdTickets(ctx context.Context, e *env, contactID string, jsonOut bool) error {
	if _, err := e.st.LoadTickets(ctx, contactID); err != nil {
		return err
	}
	episodes := e.st.Episodes(contactID)
	if jsonOut {
		type episodeOut struct {
			TicketID string    `json:"ticket_id"`
			Status   string    `json:"status"`
			Messages int       `json:"messages"`
			Started  time.Time `json:"started_at"`
			Current  bool      `json:"current"`
		}
		out := make([]episodeOut, 0, len(episodes))
		for _, ep := range episodes {
			out = append(out, episodeOut{ep.Ticket.ID, string(ep.Status), ep.MessageCount, ep.StartedAt, ep.Current})
		}
		outputJSON(out)
		return nil
	}
	for _, ep := range episodes {
		mark := " "
		if ep.Current {
			mark = "*"
		}
		fmt.Printf("%s %-12s %-10s %4d msgs  since %s\n", mark, ep.Ticket.ID, ep.Status, ep.MessageCount, ep.StartedAt.Local().Format(time.DateTime))
	}
	return nil
}

func cmdNotes(ctx context.Context, e *env, contactID, text string, jsonOut bool) error {
	if text != "" {
		n, err := e.st.AddNote(ctx, contactID, text)
		if err != nil {
			return err
		}
		fmt.Printf("Added note %s\n", n.ID)
		return nil
	}
	notes, err := e.st.LoadNotes(ctx, contactID)
	if err != nil {
		return err
	}
	if jsonOut {
		outputJSON(notes)
		return nil
	}
	for _, n := range notes {
		fmt.Printf("%s  %-12s %s\n", n.CreatedAt.Local().Format(time.DateTime), n.Author, n.Content)
	}
	return nil
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
