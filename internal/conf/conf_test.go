package conf

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Duration
	}{
		{name: "string", in: `"5s"`, want: 5 * time.Second},
		{name: "millis", in: `"250ms"`, want: 250 * time.Millisecond},
		{name: "number seconds", in: `3`, want: 3 * time.Second},
		{name: "numeric string", in: `"2"`, want: 2 * time.Second},
		{name: "null", in: `null`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			if err := json.Unmarshal([]byte(tt.in), &d); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.in, err)
			}
			if d.AsDuration() != tt.want {
				t.Fatalf("got %s want %s", d.AsDuration(), tt.want)
			}
		})
	}
}

func TestDuration_UnmarshalJSON_Invalid(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestDuration_NilAsDuration(t *testing.T) {
	var d *Duration
	if d.AsDuration() != 0 {
		t.Fatalf("nil duration should be zero")
	}
}

func TestBootstrap_ScanShape(t *testing.T) {
	raw := `{
		"server": {"http": {"addr": "0.0.0.0:8000", "timeout": "3s"}},
		"data": {
			"database": {"driver": "sqlite", "dsn": "file:x.db", "query_timeout": "2s"},
			"referral": {"code_fields": ["own_invite_code", "referral_code"]}
		}
	}`
	var bc Bootstrap
	if err := json.Unmarshal([]byte(raw), &bc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if bc.Server.Http.Timeout.AsDuration() != 3*time.Second {
		t.Fatalf("http timeout = %s", bc.Server.Http.Timeout.AsDuration())
	}
	if bc.Data.Database.QueryTimeout.AsDuration() != 2*time.Second {
		t.Fatalf("query timeout = %s", bc.Data.Database.QueryTimeout.AsDuration())
	}
	if got := bc.Data.Referral.CodeFields; len(got) != 2 || got[1] != "referral_code" {
		t.Fatalf("code fields = %v", got)
	}
}

func TestApplyEnv_OverridesAndFillsSections(t *testing.T) {
	t.Setenv("REFERRALHUB_DATABASE_DSN", "root:pw@tcp(db:3306)/referral?parseTime=true")
	t.Setenv("REFERRALHUB_JWT_SECRET", "s3cret")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	bc := &Bootstrap{
		Data: &Data{Database: &Database{Driver: "mysql", Dsn: "from-file"}},
	}
	if err := ApplyEnv(bc); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if bc.Data.Database.Dsn != "root:pw@tcp(db:3306)/referral?parseTime=true" {
		t.Fatalf("dsn not overridden: %q", bc.Data.Database.Dsn)
	}
	if bc.Data.Database.Driver != "mysql" {
		t.Fatalf("driver should keep file value, got %q", bc.Data.Database.Driver)
	}
	if bc.Data.Auth == nil || bc.Data.Auth.JwtSecret != "s3cret" {
		t.Fatalf("jwt secret not applied: %+v", bc.Data.Auth)
	}
	if bc.Data.Telegram.ChatId != 42 {
		t.Fatalf("chat id = %d", bc.Data.Telegram.ChatId)
	}
	if bc.Server == nil || bc.Server.Http == nil || bc.Trace == nil || bc.Trace.Jaeger == nil {
		t.Fatalf("sections should be filled: %+v", bc)
	}
}
