// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file wires GORM write callbacks to the change feed so
// every committed insert, update or delete emits one feed.Event.
package repo

import (
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-devradar-backend/internal/feed"
)

const commitCallback = "gorm:commit_or_rollback_transaction"

// RegisterChangeFeed installs after-commit callbacks on db that publish to
// pub. Publish failures are logged and never fail the write.
func RegisterChangeFeed(db *gorm.DB, pub feed.Publisher, log zerolog.Logger) error {
	cb := db.Callback()
	if err := cb.Create().After(commitCallback).Register("devradar:feed_create", emit(pub, feed.Insert, log)); err != nil {
		return err
	}
	if err := cb.Update().After(commitCallback).Register("devradar:feed_update", emit(pub, feed.Update, log)); err != nil {
		return err
	}
	return cb.Delete().After(commitCallback).Register("devradar:feed_delete", emit(pub, feed.Delete, log))
}

func emit(pub feed.Publisher, typ feed.EventType, log zerolog.Logger) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		if tx.Error != nil || tx.Statement.RowsAffected == 0 || tx.Statement.Table == "" {
			return
		}
		ev := feed.Event{
			Table: tx.Statement.Table,
			Type:  typ,
			ID:    primaryKey(tx),
			At:    time.Now().UTC(),
		}
		if err := pub.Publish(tx.Statement.Context, ev); err != nil {
			log.Warn().Err(err).Str("table", ev.Table).Str("type", string(typ)).Msg("change feed publish failed")
		}
	}
}

// primaryKey extracts the primary key of the written row when the statement
// targets a single struct. It returns "" for batch or conditional writes.
func primaryKey(tx *gorm.DB) string {
	stmt := tx.Statement
	if stmt.Schema == nil || stmt.Schema.PrioritizedPrimaryField == nil {
		return ""
	}
	for _, v := range []any{stmt.Model, stmt.Dest} {
		rv := reflect.Indirect(reflect.ValueOf(v))
		if !rv.IsValid() || rv.Kind() != reflect.Struct || rv.Type() != stmt.Schema.ModelType {
			continue
		}
		pk, zero := stmt.Schema.PrioritizedPrimaryField.ValueOf(stmt.Context, rv)
		if !zero {
			return fmt.Sprint(pk)
		}
	}
	return ""
}
