package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// QueryRecorder 查询耗时指标，*metrics.Collector 实现了它
type QueryRecorder interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

const startKey = "dailycrew:query_start"

// Instrument 在 gorm 回调链上注册计时钩子，每条语句按操作类型记录耗时
func Instrument(db *gorm.DB, database string, rec QueryRecorder) error {
	if rec == nil {
		return nil
	}

	before := func(tx *gorm.DB) {
		tx.InstanceSet(startKey, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startKey)
			if !ok {
				return
			}
			if start, ok := v.(time.Time); ok {
				rec.RecordDBQuery(database, operation, time.Since(start))
			}
		}
	}

	cb := db.Callback()
	for _, op := range []string{"create", "query", "update", "delete", "raw"} {
		name, anchor := "dailycrew:"+op, "gorm:"+op
		var err error
		switch op {
		case "create":
			err = errors.Join(cb.Create().Before(anchor).Register(name+":before", before),
				cb.Create().After(anchor).Register(name+":after", after(op)))
		case "query":
			err = errors.Join(cb.Query().Before(anchor).Register(name+":before", before),
				cb.Query().After(anchor).Register(name+":after", after(op)))
		case "update":
			err = errors.Join(cb.Update().Before(anchor).Register(name+":before", before),
				cb.Update().After(anchor).Register(name+":after", after(op)))
		case "delete":
			err = errors.Join(cb.Delete().Before(anchor).Register(name+":before", before),
				cb.Delete().After(anchor).Register(name+":after", after(op)))
		case "raw":
			err = errors.Join(cb.Raw().Before(anchor).Register(name+":before", before),
				cb.Raw().After(anchor).Register(name+":after", after(op)))
		}
		if err != nil {
			return fmt.Errorf("register %s callback: %w", op, err)
		}
	}
	return nil
}
