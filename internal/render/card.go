package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// 卡片 HTML 模板（外部渲染服务将其转为 PNG）
const cardTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Message Card</title>
    <style>
        body {
            margin: 0;
            padding: 0;
            font-family: 'Inter', sans-serif;
            background: transparent;
        }
        .container {
            width: 1200px;
            margin: 0 auto;
            padding: 64px;
            background: linear-gradient(135deg, #f9fafb 0%, #e0f2fe 40%, #dbeafe 100%);
        }
        .message-card {
            background: rgba(255, 255, 255, 0.95);
            border-radius: 36px;
            padding: 64px;
            box-shadow: 0 25px 60px rgba(0, 0, 0, 0.15);
        }
        .header {
            display: flex;
            align-items: center;
            justify-content: space-between;
            margin-bottom: 40px;
        }
        .sender {
            background: linear-gradient(135deg, #2563eb, #7c3aed);
            color: white;
            padding: 18px 36px;
            border-radius: 24px;
            font-size: 40px;
            font-weight: 700;
        }
        .timestamp {
            background: #f1f5f9;
            color: #475569;
            padding: 12px 28px;
            border-radius: 20px;
            font-size: 22px;
            font-weight: 500;
        }
        .message-content {
            border-left: 8px solid #2563eb;
            padding-left: 48px;
            color: #1e293b;
            line-height: 1.9;
            font-weight: 500;
            font-size: 46px;
            word-break: break-word;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="message-card">
            <div class="header">
                <div class="sender">{{.Sender}}</div>
                <div class="timestamp">{{.Timestamp}}</div>
            </div>
            <div class="message-content">{{.Message}}</div>
        </div>
    </div>
</body>
</html>`

var cardTmpl = template.Must(template.New("card").Parse(cardTemplate))

type cardData struct {
	Sender    string
	Timestamp string
	Message   template.HTML
}

// messageHTML 先转义消息文本，再把换行转成 <br> 保留多行排版。
// 结果已经是安全 HTML，以 template.HTML 注入避免二次转义。
func messageHTML(text string) template.HTML {
	escaped := template.HTMLEscapeString(text)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
}

// CardRenderer 调用外部 HTML 转图片服务渲染消息卡片。
//
// 渲染是尽力而为的：服务不可达、超时或返回异常都只降级为
// 纯文本投递，绝不阻塞消息发送。
type CardRenderer struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

// NewCardRenderer 创建卡片渲染器。endpoint 为空时返回 nil，
// 调用方按渲染禁用处理。
func NewCardRenderer(endpoint string, timeout time.Duration, log *zap.Logger) *CardRenderer {
	if endpoint == "" {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CardRenderer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

// Render 将消息文本渲染为 PNG 图片字节。
func (r *CardRenderer) Render(text string) ([]byte, error) {
	var buf bytes.Buffer
	err := cardTmpl.Execute(&buf, cardData{
		Sender:    "Anonymous",
		Timestamp: "Just now",
		Message:   messageHTML(text),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render card template: %w", err)
	}

	resp, err := r.client.Post(r.endpoint, "text/html; charset=utf-8", &buf)
	if err != nil {
		return nil, fmt.Errorf("card render request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("card render service returned status %d", resp.StatusCode)
	}

	image, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered card: %w", err)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("card render service returned empty image")
	}
	return image, nil
}
