package data

import (
	"context"
	"fmt"

	"referralhub/internal/biz"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const membersTable = "members"

var (
	// MembersColumns holds the columns for the "members" table.
	MembersColumns = []*schema.Column{
		{Name: biz.FieldID, Type: field.TypeString, Size: 64},
		{Name: "own_invite_code", Type: field.TypeString, Size: 32, Unique: true, Nullable: true},
		{Name: "my_invite_code", Type: field.TypeString, Size: 32, Nullable: true},
		{Name: "referral_code", Type: field.TypeString, Size: 32, Nullable: true},
		{Name: "invite_no", Type: field.TypeInt64, Nullable: true},
		{Name: biz.FieldUsedInviteCode, Type: field.TypeString, Size: 32, Nullable: true},
		{Name: biz.FieldStatus, Type: field.TypeString, Size: 16, Default: string(biz.StatusPending)},
		{Name: biz.FieldSelected, Type: field.TypeBool, Default: false},
		{Name: biz.FieldName, Type: field.TypeString, Size: 128, Nullable: true},
		{Name: biz.FieldEmail, Type: field.TypeString, Size: 191, Nullable: true},
		{Name: biz.FieldPhone, Type: field.TypeString, Size: 32, Nullable: true},
		{Name: "latitude", Type: field.TypeFloat64, Nullable: true},
		{Name: "longitude", Type: field.TypeFloat64, Nullable: true},
		{Name: biz.FieldCreatedAt, Type: field.TypeTime},
		{Name: biz.FieldUpdatedAt, Type: field.TypeTime},
	}
	// MembersTable holds the schema information for the "members" table.
	MembersTable = &schema.Table{
		Name:       membersTable,
		Columns:    MembersColumns,
		PrimaryKey: []*schema.Column{MembersColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "member_used_invite_code",
				Unique:  false,
				Columns: []*schema.Column{MembersColumns[5]},
			},
			{
				Name:    "member_status",
				Unique:  false,
				Columns: []*schema.Column{MembersColumns[6]},
			},
			{
				Name:    "member_created_at",
				Unique:  false,
				Columns: []*schema.Column{MembersColumns[13]},
			},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		MembersTable,
	}
)

// numericColumns 是数值类型的列，搜索时不能走 COLLATE
var numericColumns = func() map[string]struct{} {
	out := map[string]struct{}{}
	for _, c := range MembersColumns {
		switch c.Type {
		case field.TypeInt, field.TypeInt64, field.TypeFloat64:
			out[c.Name] = struct{}{}
		}
	}
	return out
}()

func isNumericColumn(name string) bool {
	_, ok := numericColumns[name]
	return ok
}

// migrate 只增不删：已有的历史列和数据保持不动
func migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("migrate create: %w", err)
	}
	return nil
}
