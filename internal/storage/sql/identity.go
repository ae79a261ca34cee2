package sql

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"askout/backend/internal/domain"
	"askout/backend/internal/storage"
)

// ========== Identity Repository ==========

// CreateIdentity 插入新身份记录
func (s *Store) CreateIdentity(identity *domain.Identity) error {
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	if identity.UpdatedAt.IsZero() {
		identity.UpdatedAt = now
	}

	query := s.rebind(`
		INSERT INTO identities (user_id, short_username, link_id, messages_received, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.Exec(query,
		identity.UserID,
		identity.ShortUsername,
		identity.LinkID,
		identity.MessagesReceived,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		return mapDuplicateError(err)
	}
	return nil
}

// GetIdentity 根据平台用户 ID 获取身份
func (s *Store) GetIdentity(userID int64) (*domain.Identity, error) {
	query := s.rebind(`
		SELECT user_id, short_username, link_id, messages_received, created_at, updated_at
		FROM identities
		WHERE user_id = ?
	`)
	return s.scanIdentity(s.db.QueryRow(query, userID))
}

// FindIdentityByToken 根据公开令牌获取身份
//
// 用户名与链接 ID 两列同查；结果超过一行说明唯一约束被破坏，
// 返回 ErrAmbiguousToken 由上层告警。
func (s *Store) FindIdentityByToken(token string) (*domain.Identity, error) {
	query := s.rebind(`
		SELECT user_id, short_username, link_id, messages_received, created_at, updated_at
		FROM identities
		WHERE short_username = ? OR link_id = ?
		LIMIT 2
	`)
	rows, err := s.db.Query(query, token, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*domain.Identity
	for rows.Next() {
		var identity domain.Identity
		if err := rows.Scan(
			&identity.UserID,
			&identity.ShortUsername,
			&identity.LinkID,
			&identity.MessagesReceived,
			&identity.CreatedAt,
			&identity.UpdatedAt,
		); err != nil {
			return nil, err
		}
		matches = append(matches, &identity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, storage.ErrIdentityNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, storage.ErrAmbiguousToken
	}
}

// UpdateUsername 更新用户名
//
// 依赖唯一索引拒绝占用冲突，不做读-改-写。
func (s *Store) UpdateUsername(userID int64, username string) error {
	query := s.rebind(`
		UPDATE identities
		SET short_username = ?, updated_at = ?
		WHERE user_id = ?
	`)
	result, err := s.db.Exec(query, username, time.Now().UTC(), userID)
	if err != nil {
		mapped := mapDuplicateError(err)
		if errors.Is(mapped, storage.ErrUsernameTaken) {
			// 重设为自己当前的用户名也会触发部分数据库的冲突报告，
			// 先确认归属再决定是否视为冲突
			if current, getErr := s.GetIdentity(userID); getErr == nil && current.ShortUsername == username {
				return nil
			}
		}
		return mapped
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// 值未变化时 MySQL 也报告 0 行，需要区分用户不存在
		if _, getErr := s.GetIdentity(userID); getErr != nil {
			return storage.ErrIdentityNotFound
		}
	}
	return nil
}

// IncrementReceived 将接收计数原子加一（单行 UPDATE，无读-改-写）
func (s *Store) IncrementReceived(userID int64) (bool, error) {
	query := s.rebind(`
		UPDATE identities
		SET messages_received = messages_received + 1, updated_at = ?
		WHERE user_id = ?
	`)
	result, err := s.db.Exec(query, time.Now().UTC(), userID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CountIdentities 返回身份总数
func (s *Store) CountIdentities() (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM identities`).Scan(&count)
	return count, err
}

// ListIdentities 分页列出身份
func (s *Store) ListIdentities(page, pageSize int) ([]domain.Identity, int64, error) {
	total, err := s.CountIdentities()
	if err != nil {
		return nil, 0, err
	}

	query := s.rebind(`
		SELECT user_id, short_username, link_id, messages_received, created_at, updated_at
		FROM identities
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`)
	rows, err := s.db.Query(query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	identities := make([]domain.Identity, 0, pageSize)
	for rows.Next() {
		var identity domain.Identity
		if err := rows.Scan(
			&identity.UserID,
			&identity.ShortUsername,
			&identity.LinkID,
			&identity.MessagesReceived,
			&identity.CreatedAt,
			&identity.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		identities = append(identities, identity)
	}
	return identities, total, rows.Err()
}

// scanIdentity 扫描单行身份记录
func (s *Store) scanIdentity(row *sql.Row) (*domain.Identity, error) {
	var identity domain.Identity
	err := row.Scan(
		&identity.UserID,
		&identity.ShortUsername,
		&identity.LinkID,
		&identity.MessagesReceived,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrIdentityNotFound
		}
		return nil, err
	}
	return &identity, nil
}

// mapDuplicateError 将数据库唯一约束冲突映射为领域错误
func mapDuplicateError(err error) error {
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		if strings.Contains(mysqlErr.Message, "link_id") {
			return storage.ErrLinkIDTaken
		}
		return storage.ErrUsernameTaken
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		if strings.Contains(pqErr.Constraint, "link_id") {
			return storage.ErrLinkIDTaken
		}
		return storage.ErrUsernameTaken
	}

	return err
}
