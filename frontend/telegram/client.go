// Package telegram implements clawgate.Frontend against the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	oasis "github.com/nevindra/clawgate"
)

const (
	maxMessageLength = 4096
	apiBaseURL       = "https://api.telegram.org/bot"
)

// Client implements oasis.Frontend for Telegram, long-polling getUpdates.
type Client struct {
	token      string
	apiBase    string // defaults to apiBaseURL; overridable in tests
	httpClient *http.Client
}

var _ oasis.Frontend = (*Client)(nil)

// New creates a Telegram frontend authenticated with the given bot token.
func New(token string) *Client {
	return &Client{token: token, apiBase: apiBaseURL, httpClient: &http.Client{}}
}

// Poll long-polls getUpdates and emits each incoming message until ctx is cancelled.
func (c *Client) Poll(ctx context.Context) (<-chan oasis.IncomingMessage, error) {
	ch := make(chan oasis.IncomingMessage)
	go c.pollLoop(ctx, ch)
	return ch, nil
}

func (c *Client) pollLoop(ctx context.Context, ch chan<- oasis.IncomingMessage) {
	defer close(ch)
	var offset int64

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := c.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			msg := mapToIncoming(u.Message)
			select {
			case ch <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Client) getUpdates(ctx context.Context, offset int64) ([]Update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         30,
		"allowed_updates": []string{"message"},
	}
	var result []Update
	if err := c.callAPI(ctx, "getUpdates", body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Send sends text, splitting into multiple messages if it exceeds Telegram's
// per-message length limit. Returns the ID of the last message sent.
func (c *Client) Send(ctx context.Context, chatID string, text string) (string, error) {
	var lastMsgID string
	for _, chunk := range splitMessage(text) {
		body := map[string]any{
			"chat_id":    chatID,
			"text":       MarkdownToHTML(chunk),
			"parse_mode": "HTML",
		}
		var result Message
		if err := c.callAPI(ctx, "sendMessage", body, &result); err != nil {
			return "", err
		}
		lastMsgID = strconv.FormatInt(result.MessageID, 10)
	}
	return lastMsgID, nil
}

// Edit replaces an existing message's text without formatting.
func (c *Client) Edit(ctx context.Context, chatID string, msgID string, text string) error {
	id, err := strconv.ParseInt(msgID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid message id %q: %w", msgID, err)
	}
	body := map[string]any{"chat_id": chatID, "message_id": id, "text": text}
	err = c.callAPI(ctx, "editMessageText", body, nil)
	if err != nil && isNotModifiedError(err) {
		return nil
	}
	return err
}

// EditFormatted replaces an existing message's text, rendering markdown to
// Telegram HTML, falling back to plain text if the server rejects the markup.
func (c *Client) EditFormatted(ctx context.Context, chatID string, msgID string, text string) error {
	id, err := strconv.ParseInt(msgID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid message id %q: %w", msgID, err)
	}
	body := map[string]any{
		"chat_id":    chatID,
		"message_id": id,
		"text":       MarkdownToHTML(text),
		"parse_mode": "HTML",
	}
	err = c.callAPI(ctx, "editMessageText", body, nil)
	if err == nil || isNotModifiedError(err) {
		return nil
	}
	return c.Edit(ctx, chatID, msgID, text)
}

// SendTyping shows the chat's typing indicator.
func (c *Client) SendTyping(ctx context.Context, chatID string) error {
	body := map[string]any{"chat_id": chatID, "action": "typing"}
	return c.callAPI(ctx, "sendChatAction", body, nil)
}

// DownloadFile resolves a file_id to a path via getFile, then fetches it.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	var file File
	if err := c.callAPI(ctx, "getFile", map[string]any{"file_id": fileID}, &file); err != nil {
		return nil, "", err
	}
	if file.FilePath == "" {
		return nil, "", fmt.Errorf("telegram: empty file_path for file_id %s", fileID)
	}

	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: create download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("telegram: download file HTTP %d: %s", resp.StatusCode, string(body))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("telegram: read file body: %w", err)
	}
	parts := strings.Split(file.FilePath, "/")
	return data, parts[len(parts)-1], nil
}

func (c *Client) callAPI(ctx context.Context, method string, reqBody any, result any) error {
	base := c.apiBase
	if base == "" {
		base = apiBaseURL
	}
	url := base + c.token + "/" + method

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("telegram: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}

	var envelope ApiResponse[json.RawMessage]
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("telegram: decode response: %w (body: %s)", err, string(respBody))
	}
	if !envelope.OK {
		return &apiError{Code: envelope.ErrorCode, Description: envelope.Description}
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("telegram: decode result: %w", err)
		}
	}
	return nil
}

type apiError struct {
	Code        int
	Description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram API error %d: %s", e.Code, e.Description)
}

func isNotModifiedError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

func mapToIncoming(m *Message) oasis.IncomingMessage {
	msg := oasis.IncomingMessage{
		ID:     strconv.FormatInt(m.MessageID, 10),
		ChatID: strconv.FormatInt(m.Chat.ID, 10),
		Text:   m.Text,
	}
	if m.From != nil {
		msg.UserID = strconv.FormatInt(m.From.ID, 10)
	}
	if m.Caption != "" {
		msg.Caption = m.Caption
		if msg.Text == "" {
			msg.Text = m.Caption
		}
	}
	if m.Document != nil {
		msg.Document = &oasis.FileInfo{
			FileID:   m.Document.FileID,
			FileName: m.Document.FileName,
			MimeType: m.Document.MimeType,
			FileSize: m.Document.FileSize,
		}
	}
	if len(m.Photo) > 0 {
		msg.Photos = make([]oasis.FileInfo, len(m.Photo))
		for i, p := range m.Photo {
			msg.Photos[i] = oasis.FileInfo{FileID: p.FileID, FileSize: p.FileSize}
		}
	}
	if m.ReplyToMessage != nil {
		msg.ReplyToMsgID = strconv.FormatInt(m.ReplyToMessage.MessageID, 10)
	}
	return msg
}

func splitMessage(text string) []string {
	if len(text) <= maxMessageLength {
		return []string{text}
	}
	var chunks []string
	remaining := text
	for len(remaining) > 0 {
		if len(remaining) <= maxMessageLength {
			chunks = append(chunks, remaining)
			break
		}
		splitAt := remaining[:maxMessageLength]
		splitPos := strings.LastIndex(splitAt, "\n")
		if splitPos == -1 {
			splitPos = maxMessageLength
		} else {
			splitPos++
		}
		chunks = append(chunks, remaining[:splitPos])
		remaining = remaining[splitPos:]
	}
	return chunks
}
