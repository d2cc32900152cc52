package bridge

import (
	"errors"
	"testing"

	"github.com/pithecene-io/cellsolve/host"
	"github.com/pithecene-io/cellsolve/types"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		reply host.Reply
		err   error
		want  types.Outcome
	}{
		{name: "mechanism error", err: errors.New("pipe closed"), want: types.OutcomeTransportFailure},
		{name: "abort status", reply: host.Reply{Status: host.StatusAbort}, want: types.OutcomeTransportFailure},
		{name: "uncalced status", reply: host.Reply{Status: host.StatusUncalced}, want: types.OutcomeTransportFailure},
		{name: "scalar sentinel", reply: host.Reply{Value: types.Number(-1)}, want: types.OutcomeHostLogicFailure},
		{name: "sentinel inside array is data", reply: host.Reply{Value: types.Row(types.Number(-1))}, want: types.OutcomeSuccess},
		{name: "other negative number", reply: host.Reply{Value: types.Number(-2)}, want: types.OutcomeSuccess},
		{name: "bool", reply: host.Reply{Value: types.Bool(true)}, want: types.OutcomeSuccess},
		{name: "status wins over sentinel", reply: host.Reply{Status: host.StatusFailed, Value: types.Number(-1)}, want: types.OutcomeTransportFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.reply, tt.err); got != tt.want {
				t.Errorf("Validate() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name    string
		str     types.Variant
		length  types.Variant
		want    string
		wantErr bool
	}{
		{name: "exact", str: types.String("run.log"), length: types.Number(7), want: "run.log"},
		{name: "truncated", str: types.String("C:\\tmp\\log.txtGARBAGE"), length: types.Number(14), want: "C:\\tmp\\log.txt"},
		{name: "length beyond text", str: types.String("abc"), length: types.Number(10), want: "abc"},
		{name: "multibyte truncation", str: types.String("héllo"), length: types.Number(2), want: "hé"},
		{name: "not a string", str: types.Number(3), length: types.Number(1), wantErr: true},
		{name: "negative length", str: types.String("x"), length: types.Number(-3), wantErr: true},
		{name: "fractional length", str: types.String("x"), length: types.Number(1.5), wantErr: true},
		{name: "length not a number", str: types.String("x"), length: types.String("1"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := text(tt.str, tt.length)
			if (err != nil) != tt.wantErr {
				t.Fatalf("text() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestElements(t *testing.T) {
	if _, err := elements(types.Number(1), 1); err == nil {
		t.Error("scalar accepted as array")
	}
	if _, err := elements(types.Row(types.Number(1), types.Number(2)), 3); err == nil {
		t.Error("wrong element count accepted")
	}
	if elems, err := elements(types.Missing(), 0); err != nil || elems != nil {
		t.Errorf("Missing for empty array = %v, %v", elems, err)
	}
	if _, err := elements(types.Missing(), 1); err == nil {
		t.Error("Missing accepted for non-empty array")
	}
}
