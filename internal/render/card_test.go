package render

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardRenderer_Render(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		w.Write([]byte("fake-png-bytes"))
	}))
	defer server.Close()

	renderer := NewCardRenderer(server.URL, 5*time.Second, nil)
	require.NotNil(t, renderer)

	image, err := renderer.Render("hello <world>")
	require.NoError(t, err)
	assert.Equal(t, []byte("fake-png-bytes"), image)

	// 消息文本进入模板且被转义
	assert.Contains(t, received, "&lt;world&gt;")
	assert.NotContains(t, received, "<world>")
	assert.Contains(t, received, "Anonymous")
}

func TestCardRenderer_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	renderer := NewCardRenderer(server.URL, 5*time.Second, nil)
	_, err := renderer.Render("hi")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestCardRenderer_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	renderer := NewCardRenderer(server.URL, 5*time.Second, nil)
	_, err := renderer.Render("hi")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "empty image")
}

func TestCardRenderer_Unreachable(t *testing.T) {
	renderer := NewCardRenderer("http://127.0.0.1:1", 500*time.Millisecond, nil)
	_, err := renderer.Render("hi")
	assert.Error(t, err)
}

func TestNewCardRenderer_DisabledWithoutEndpoint(t *testing.T) {
	assert.Nil(t, NewCardRenderer("", time.Second, nil))
}

func TestCardTemplate_MultilineMessage(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	renderer := NewCardRenderer(server.URL, 5*time.Second, nil)
	_, err := renderer.Render("line one\nline two")
	require.NoError(t, err)

	// 换行转为 <br>，卡片里不残留裸换行
	assert.Contains(t, received, "line one<br>line two")
	assert.NotContains(t, received, "line one\nline two")
}

func TestMessageHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"纯文本原样保留", "hello", "hello"},
		{"换行转为br", "a\nb\nc", "a<br>b<br>c"},
		{"先转义再换行", "<b>\n&", "&lt;b&gt;<br>&amp;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(messageHTML(tt.in)))
		})
	}
}
