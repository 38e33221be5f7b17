package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotifier wraps failures talking to the external access system so the
// synchronous caller can report them as a distinct kind.
var ErrNotifier = errors.New("access notifier failure")

// Notifier mutes or unmutes a chat member in a gated community.
type Notifier interface {
	SetMemberAccess(ctx context.Context, botToken, chatGroupID, telegramID string, allow bool) error
}

// TelegramNotifier 通过 Telegram Bot API 调整群成员权限。
type TelegramNotifier struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 权限控制器。
func NewTelegramNotifier(baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "gate_telegram").Logger(),
	}
}

type chatPermissions struct {
	CanSendMessages       bool `json:"can_send_messages"`
	CanSendMediaMessages  bool `json:"can_send_media_messages"`
	CanSendOtherMessages  bool `json:"can_send_other_messages"`
	CanSendPolls          bool `json:"can_send_polls"`
	CanAddWebPagePreviews bool `json:"can_add_web_page_previews"`
}

type restrictRequest struct {
	ChatID      string          `json:"chat_id"`
	UserID      string          `json:"user_id"`
	Permissions chatPermissions `json:"permissions"`
}

// SetMemberAccess 调用 restrictChatMember：allow 时恢复全部发言权限，否则清空。
func (n *TelegramNotifier) SetMemberAccess(ctx context.Context, botToken, chatGroupID, telegramID string, allow bool) error {
	payload := restrictRequest{
		ChatID: chatGroupID,
		UserID: telegramID,
	}
	if allow {
		payload.Permissions = chatPermissions{
			CanSendMessages:       true,
			CanSendMediaMessages:  true,
			CanSendOtherMessages:  true,
			CanSendPolls:          true,
			CanAddWebPagePreviews: true,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal restrict payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/restrictChatMember", n.baseURL, botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create restrict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: telegram 响应码异常: %d", ErrNotifier, resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("%w: telegram 返回 ok=false", ErrNotifier)
		}
	}

	n.logger.Info().
		Str("chat_group_id", chatGroupID).
		Str("telegram_id", telegramID).
		Bool("allow", allow).
		Msg("成员权限已更新 (Telegram)")
	return nil
}

var _ Notifier = (*TelegramNotifier)(nil)
