package data

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// mysql ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

func isDuplicateInviteCodeConstraint(err error) bool {
	return isDuplicateUniqueConstraint(err, "own_invite_code")
}

func isDuplicateUniqueConstraint(err error, keys ...string) bool {
	if err == nil {
		return false
	}

	unique := false
	var myErr *mysql.MySQLError
	var liteErr *msqlite.Error
	switch {
	case errors.As(err, &myErr):
		unique = myErr.Number == mysqlDuplicateEntry
	case errors.As(err, &liteErr):
		code := liteErr.Code()
		unique = code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	// 只识别唯一键冲突，外键等其他约束错误不算
	msg := strings.ToLower(err.Error())
	if !unique && !strings.Contains(msg, "duplicate") && !strings.Contains(msg, "unique") {
		return false
	}

	for _, key := range keys {
		if strings.Contains(msg, strings.ToLower(key)) {
			return true
		}
	}
	return false
}
