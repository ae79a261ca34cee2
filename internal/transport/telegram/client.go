package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DefaultAPIBase Bot API 的默认地址
const DefaultAPIBase = "https://api.telegram.org"

// Client Telegram Bot API 客户端
//
// 只封装本服务用到的方法（getMe、getUpdates、sendMessage、
// sendPhoto），文本消息一律使用 HTML 解析模式。
type Client struct {
	token   string
	apiBase string
	client  *http.Client
	log     *zap.Logger
}

// NewClient 创建 Bot API 客户端。apiBase 为空时使用官方地址。
func NewClient(token, apiBase string, log *zap.Logger) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		token:   token,
		apiBase: apiBase,
		client: &http.Client{
			// 长轮询超时由调用方控制，这里只兜底
			Timeout: 90 * time.Second,
		},
		log: log,
	}
}

// GetMe 返回机器人自身信息
func (c *Client) GetMe() (*BotInfo, error) {
	result, err := c.call("getMe", url.Values{})
	if err != nil {
		return nil, err
	}

	var info BotInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("failed to decode getMe response: %w", err)
	}
	return &info, nil
}

// GetUpdates 长轮询拉取一批更新
//
// offset 是期望的最小 update_id；timeout 是服务端挂起秒数。
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(timeout))
	params.Set("allowed_updates", `["message"]`)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.methodURL("getUpdates"), bytes.NewBufferString(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result, err := decodeResponse(resp)
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("failed to decode updates: %w", err)
	}
	return updates, nil
}

// SendText 发送 HTML 文本消息
func (c *Client) SendText(chatID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)
	params.Set("parse_mode", "HTML")

	_, err := c.call("sendMessage", params)
	return err
}

// SendTextWithButton 发送带单键内联键盘的 HTML 文本消息
func (c *Client) SendTextWithButton(chatID int64, text, buttonLabel, buttonURL string) error {
	markup, err := json.Marshal(inlineKeyboard{
		InlineKeyboard: [][]inlineButton{
			{{Text: buttonLabel, URL: buttonURL}},
		},
	})
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)
	params.Set("parse_mode", "HTML")
	params.Set("reply_markup", string(markup))

	_, err = c.call("sendMessage", params)
	return err
}

// SendPhoto 以 multipart 上传方式发送图片
func (c *Client) SendPhoto(chatID int64, photo []byte, caption string) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return err
		}
		if err := writer.WriteField("parse_mode", "HTML"); err != nil {
			return err
		}
	}

	part, err := writer.CreateFormFile("photo", "card.png")
	if err != nil {
		return err
	}
	if _, err := part.Write(photo); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	resp, err := c.client.Post(c.methodURL("sendPhoto"), writer.FormDataContentType(), &body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, err = decodeResponse(resp)
	return err
}

// call 发送表单编码的 API 请求并返回 result 字段
func (c *Client) call(method string, params url.Values) (json.RawMessage, error) {
	resp, err := c.client.PostForm(c.methodURL(method), params)
	if err != nil {
		return nil, fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp)
}

// methodURL 构造方法调用地址
func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
}

// decodeResponse 解析 API 响应包装，失败时返回带描述的错误
func decodeResponse(resp *http.Response) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	var wrapper apiResponse
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode telegram response: %w", err)
	}
	if !wrapper.OK {
		return nil, fmt.Errorf("telegram api error %d: %s", wrapper.ErrorCode, wrapper.Description)
	}
	return wrapper.Result, nil
}
