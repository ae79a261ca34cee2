package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askout/backend/internal/domain"
	"askout/backend/internal/storage/memory"
)

// fakeTransport 记录出站消息，便于断言。
// failTo 非零时对该会话的发送全部失败，模拟收件人不可达。
type fakeTransport struct {
	sent   []sentMessage
	failTo int64
}

type sentMessage struct {
	chatID    int64
	text      string
	buttonURL string
	photo     []byte
}

func (f *fakeTransport) SendText(chatID int64, text string) error {
	if f.failTo != 0 && chatID == f.failTo {
		return errors.New("network down")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeTransport) SendTextWithButton(chatID int64, text, buttonLabel, buttonURL string) error {
	if f.failTo != 0 && chatID == f.failTo {
		return errors.New("network down")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, buttonURL: buttonURL})
	return nil
}

func (f *fakeTransport) SendPhoto(chatID int64, photo []byte, caption string) error {
	if f.failTo != 0 && chatID == f.failTo {
		return errors.New("network down")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: caption, photo: photo})
	return nil
}

func (f *fakeTransport) lastTo(chatID int64) *sentMessage {
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].chatID == chatID {
			return &f.sent[i]
		}
	}
	return nil
}

func newRelayService(t *testing.T) (*RelayService, *fakeTransport, *memory.Store) {
	t.Helper()
	store := memory.NewStore(24 * time.Hour)
	identities := NewIdentityService(store, testLinkBase, nil)
	transport := &fakeTransport{}
	relay := NewRelayService(identities, store, transport, nil, nil)
	return relay, transport, store
}

func startEvent(chatID, senderID int64, token string) *domain.InboundEvent {
	return &domain.InboundEvent{ChatID: chatID, SenderID: senderID, Command: "start", Args: token}
}

func textEvent(chatID, senderID int64, text string) *domain.InboundEvent {
	return &domain.InboundEvent{ChatID: chatID, SenderID: senderID, Text: text}
}

func TestRelayService_Start(t *testing.T) {
	relay, transport, _ := newRelayService(t)

	t.Run("普通start下发本人链接", func(t *testing.T) {
		require.NoError(t, relay.Dispatch(startEvent(100, 100, "")))

		msg := transport.lastTo(100)
		require.NotNil(t, msg)
		assert.Contains(t, msg.text, "Welcome to Ask Out!")
		assert.Contains(t, msg.text, testLinkBase+"?start=anon")
		assert.Contains(t, msg.buttonURL, testLinkBase)
	})

	t.Run("重复start返回同一链接", func(t *testing.T) {
		require.NoError(t, relay.Dispatch(startEvent(100, 100, "")))
		first := transport.lastTo(100).text

		require.NoError(t, relay.Dispatch(startEvent(100, 100, "")))
		assert.Equal(t, first, transport.lastTo(100).text)
	})

	t.Run("带有效令牌的start提示输入", func(t *testing.T) {
		require.NoError(t, relay.Dispatch(startEvent(200, 200, "")))
		recipient := transport.lastTo(200)
		require.NotNil(t, recipient)

		// 从欢迎消息提取收件人令牌
		identity, err := relay.identities.Get(200)
		require.NoError(t, err)

		require.NoError(t, relay.Dispatch(startEvent(300, 300, identity.ShortUsername)))
		assert.Contains(t, transport.lastTo(300).text, "Send your anonymous message")
	})

	t.Run("无效令牌提示链接失效", func(t *testing.T) {
		require.NoError(t, relay.Dispatch(startEvent(400, 400, "no_such_user")))
		assert.Equal(t, msgInvalidLink, transport.lastTo(400).text)
	})
}

func TestRelayService_Relay(t *testing.T) {
	relay, transport, store := newRelayService(t)

	// 收件人注册
	recipient, err := relay.identities.GetOrCreate(500)
	require.NoError(t, err)

	t.Run("完整转发流程", func(t *testing.T) {
		require.NoError(t, relay.Dispatch(startEvent(600, 600, recipient.ShortUsername)))
		require.NoError(t, relay.Dispatch(textEvent(600, 600, "do you like me?")))

		// 收件人收到匿名消息
		delivered := transport.lastTo(500)
		require.NotNil(t, delivered)
		assert.Contains(t, delivered.text, "You received an anonymous message")
		assert.Contains(t, delivered.text, "do you like me?")

		// 发送方收到确认
		assert.Equal(t, msgSent, transport.lastTo(600).text)

		// 接收计数加一
		updated, err := relay.identities.Get(500)
		require.NoError(t, err)
		assert.EqualValues(t, 1, updated.MessagesReceived)
	})

	t.Run("消息正文中的HTML被转义", func(t *testing.T) {
		require.NoError(t, relay.Dispatch(startEvent(601, 601, recipient.ShortUsername)))
		require.NoError(t, relay.Dispatch(textEvent(601, 601, "<script>hi</script>")))

		delivered := transport.lastTo(500)
		assert.NotContains(t, delivered.text, "<script>")
		assert.Contains(t, delivered.text, "&lt;script&gt;")
	})

	t.Run("会话态一次性消费", func(t *testing.T) {
		require.NoError(t, relay.Dispatch(startEvent(602, 602, recipient.ShortUsername)))
		require.NoError(t, relay.Dispatch(textEvent(602, 602, "first")))

		// 第二条文本没有目标，回到下发本人链接
		require.NoError(t, relay.Dispatch(textEvent(602, 602, "second")))
		assert.Contains(t, transport.lastTo(602).text, "Welcome to Ask Out!")
	})

	t.Run("发送时目标已消失", func(t *testing.T) {
		// 直接写入指向不存在用户的会话态（模拟发送前目标改名）
		require.NoError(t, store.SetPendingTarget(603, "vanished_user"))
		require.NoError(t, relay.Dispatch(textEvent(603, 603, "hello?")))

		assert.Equal(t, msgTargetGone, transport.lastTo(603).text)

		// 失败后会话态同样被清除
		require.NoError(t, relay.Dispatch(textEvent(603, 603, "again")))
		assert.Contains(t, transport.lastTo(603).text, "Welcome to Ask Out!")
	})

	t.Run("改名后经链接ID的会话仍可投递", func(t *testing.T) {
		target, err := relay.identities.GetOrCreate(700)
		require.NoError(t, err)

		require.NoError(t, relay.Dispatch(startEvent(701, 701, target.LinkID)))
		_, err = relay.identities.SetUsername(700, "renamed_target")
		require.NoError(t, err)

		require.NoError(t, relay.Dispatch(textEvent(701, 701, "still works")))
		delivered := transport.lastTo(700)
		require.NotNil(t, delivered)
		assert.Contains(t, delivered.text, "still works")
	})

	t.Run("改名后经旧用户名的会话投递失败", func(t *testing.T) {
		target, err := relay.identities.GetOrCreate(800)
		require.NoError(t, err)
		oldUsername := target.ShortUsername

		require.NoError(t, relay.Dispatch(startEvent(801, 801, oldUsername)))
		_, err = relay.identities.SetUsername(800, "moved_away")
		require.NoError(t, err)

		require.NoError(t, relay.Dispatch(textEvent(801, 801, "too late")))
		assert.Equal(t, msgTargetGone, transport.lastTo(801).text)
	})

	t.Run("投递失败返回失败提示且不重投", func(t *testing.T) {
		target, err := relay.identities.GetOrCreate(1500)
		require.NoError(t, err)

		require.NoError(t, relay.Dispatch(startEvent(1501, 1501, target.ShortUsername)))

		// 收件人不可达，发给发送方的失败提示仍然可达
		transport.failTo = target.UserID
		require.NoError(t, relay.Dispatch(textEvent(1501, 1501, "lost message")))
		transport.failTo = 0

		assert.Equal(t, msgDeliveryFailed, transport.lastTo(1501).text)

		// 失败投递不增加接收计数
		updated, err := relay.identities.Get(1500)
		require.NoError(t, err)
		assert.EqualValues(t, 0, updated.MessagesReceived)

		// 会话态已被消费，后续文本不会重投
		require.NoError(t, relay.Dispatch(textEvent(1501, 1501, "try again")))
		assert.Contains(t, transport.lastTo(1501).text, "Welcome to Ask Out!")
	})

	t.Run("无会话态的文本下发本人链接", func(t *testing.T) {
		require.NoError(t, relay.Dispatch(textEvent(900, 900, "just chatting")))
		msg := transport.lastTo(900)
		require.NotNil(t, msg)
		assert.Contains(t, msg.text, "Welcome to Ask Out!")
	})
}

func TestRelayService_SetUsername(t *testing.T) {
	relay, transport, _ := newRelayService(t)

	event := func(args string) *domain.InboundEvent {
		return &domain.InboundEvent{ChatID: 1000, SenderID: 1000, Command: "setusername", Args: args}
	}

	t.Run("设置成功并返回新链接", func(t *testing.T) {
		require.NoError(t, relay.Dispatch(event("my_handle")))

		msg := transport.lastTo(1000)
		assert.Contains(t, msg.text, "my_handle")
		assert.Contains(t, msg.text, testLinkBase+"?start=my_handle")
	})

	t.Run("重复设置同名单独提示", func(t *testing.T) {
		require.NoError(t, relay.Dispatch(event("my_handle")))
		assert.Equal(t, msgUsernameSame, transport.lastTo(1000).text)
	})

	t.Run("缺参数提示用法", func(t *testing.T) {
		require.NoError(t, relay.Dispatch(event("")))
		assert.Equal(t, msgUsernameUsage, transport.lastTo(1000).text)

		require.NoError(t, relay.Dispatch(event("two words")))
		assert.Equal(t, msgUsernameUsage, transport.lastTo(1000).text)
	})

	t.Run("非法格式被拒绝", func(t *testing.T) {
		require.NoError(t, relay.Dispatch(event("x")))
		assert.Equal(t, msgUsernameInvalid, transport.lastTo(1000).text)
	})

	t.Run("占用冲突被拒绝", func(t *testing.T) {
		other := &domain.InboundEvent{ChatID: 1001, SenderID: 1001, Command: "setusername", Args: "my_handle"}
		require.NoError(t, relay.Dispatch(other))
		assert.Equal(t, msgUsernameTaken, transport.lastTo(1001).text)
	})
}

func TestRelayService_Stats(t *testing.T) {
	relay, transport, _ := newRelayService(t)

	statsEvent := func(chatID int64) *domain.InboundEvent {
		return &domain.InboundEvent{ChatID: chatID, SenderID: chatID, Command: "stats"}
	}

	t.Run("未注册用户提示先start", func(t *testing.T) {
		require.NoError(t, relay.Dispatch(statsEvent(1100)))
		assert.Equal(t, msgNotRegistered, transport.lastTo(1100).text)
	})

	t.Run("返回接收计数", func(t *testing.T) {
		recipient, err := relay.identities.GetOrCreate(1200)
		require.NoError(t, err)

		require.NoError(t, relay.Dispatch(startEvent(1201, 1201, recipient.ShortUsername)))
		require.NoError(t, relay.Dispatch(textEvent(1201, 1201, "hi")))

		require.NoError(t, relay.Dispatch(statsEvent(1200)))
		assert.Contains(t, transport.lastTo(1200).text, fmt.Sprintf("<code>%d</code>", 1))
	})
}

// stubRenderer 返回固定图片字节
type stubRenderer struct {
	card []byte
	err  error
}

func (r *stubRenderer) Render(text string) ([]byte, error) {
	return r.card, r.err
}

func TestRelayService_CardRendering(t *testing.T) {
	t.Run("渲染成功时发送图片", func(t *testing.T) {
		store := memory.NewStore(24 * time.Hour)
		identities := NewIdentityService(store, testLinkBase, nil)
		transport := &fakeTransport{}
		relay := NewRelayService(identities, store, transport, &stubRenderer{card: []byte("png")}, nil)

		recipient, err := identities.GetOrCreate(1300)
		require.NoError(t, err)

		require.NoError(t, relay.Dispatch(startEvent(1301, 1301, recipient.ShortUsername)))
		require.NoError(t, relay.Dispatch(textEvent(1301, 1301, "with card")))

		delivered := transport.lastTo(1300)
		require.NotNil(t, delivered)
		assert.Equal(t, []byte("png"), delivered.photo)
	})

	t.Run("渲染失败降级为纯文本", func(t *testing.T) {
		store := memory.NewStore(24 * time.Hour)
		identities := NewIdentityService(store, testLinkBase, nil)
		transport := &fakeTransport{}
		relay := NewRelayService(identities, store, transport, &stubRenderer{err: errors.New("renderer down")}, nil)

		recipient, err := identities.GetOrCreate(1400)
		require.NoError(t, err)

		require.NoError(t, relay.Dispatch(startEvent(1401, 1401, recipient.ShortUsername)))
		require.NoError(t, relay.Dispatch(textEvent(1401, 1401, "no card")))

		delivered := transport.lastTo(1400)
		require.NotNil(t, delivered)
		assert.Nil(t, delivered.photo)
		assert.Contains(t, delivered.text, "no card")
	})
}
