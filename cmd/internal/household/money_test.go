package household

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{in: "12", want: 1200},
		{in: "12.5", want: 1250},
		{in: "12.50", want: 1250},
		{in: " 0.07 ", want: 7},
		{in: "0", want: 0},
		{in: "1500000", want: 150000000},
		{in: "", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "+1", wantErr: true},
		{in: "1.", wantErr: true},
		{in: ".5", wantErr: true},
		{in: "1.234", wantErr: true},
		{in: "1e3", wantErr: true},
		{in: "12,50", wantErr: true},
		{in: "99999999999999", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidAmount) {
				t.Errorf("ParseAmount(%q) err = %v, want ErrInvalidAmount", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseAmount(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
}

func TestAmount_String(t *testing.T) {
	t.Parallel()

	for in, want := range map[Amount]string{0: "0.00", 5: "0.05", 1250: "12.50", 100001: "1000.01"} {
		if got := in.String(); got != want {
			t.Errorf("Amount(%d).String() = %q, want %q", in, got, want)
		}
	}
}

func TestAmount_JSON(t *testing.T) {
	t.Parallel()

	var v struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"12.50","b":0.1}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A != 1250 || v.B != 10 {
		t.Fatalf("decoded = %+v", v)
	}
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"a":"12.50","b":"0.10"}` {
		t.Fatalf("encoded = %s", out)
	}
	if err := json.Unmarshal([]byte(`{"a":"1.005"}`), &v); err == nil {
		t.Fatalf("expected error for three decimals")
	}
}

func TestDate_JSON(t *testing.T) {
	t.Parallel()

	var d Date
	if err := json.Unmarshal([]byte(`"2026-03-01"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !d.Time().Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date = %v", d.Time())
	}
	if err := json.Unmarshal([]byte(`"01/03/2026"`), &d); err == nil {
		t.Fatalf("expected error for foreign layout")
	}

	late := Date(time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC))
	out, _ := json.Marshal(late)
	if string(out) != `"2026-03-01"` {
		t.Fatalf("encoded = %s", out)
	}
}
