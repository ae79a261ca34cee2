package domain

import "time"

// Identity 表示一个已注册用户的公开身份记录
//
// 每个与机器人交互过的平台用户对应一条记录，user_id 为平台分配的
// 不可变主键。short_username 与 link_id 都可以作为公开分享令牌使用。
type Identity struct {
	UserID           int64     `json:"userId" gorm:"primaryKey;column:user_id"`
	ShortUsername    string    `json:"shortUsername" gorm:"uniqueIndex;type:varchar(20);not null;column:short_username"`
	LinkID           string    `json:"linkId" gorm:"uniqueIndex;type:varchar(16);not null;column:link_id"`
	MessagesReceived int64     `json:"messagesReceived" gorm:"default:0;column:messages_received"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TableName 指定 GORM 迁移使用的表名
func (Identity) TableName() string {
	return "identities"
}

// MatchesToken 判断令牌是否命中该身份（用户名或链接 ID 均可）
func (i *Identity) MatchesToken(token string) bool {
	return i.ShortUsername == token || i.LinkID == token
}
