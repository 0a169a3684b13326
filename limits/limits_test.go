package limits

import (
	"errors"
	"testing"
)

func TestValidateSize(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		maxSize int
		wantErr error
	}{
		{name: "empty data", data: []byte{}, maxSize: 100, wantErr: ErrEmpty},
		{name: "nil data", data: nil, maxSize: 100, wantErr: ErrEmpty},
		{name: "valid within limit", data: make([]byte, 50), maxSize: 100, wantErr: nil},
		{name: "valid at exact limit", data: make([]byte, 100), maxSize: 100, wantErr: nil},
		{name: "exceeds limit", data: make([]byte, 101), maxSize: 100, wantErr: ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSize(tt.data, tt.maxSize)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSize() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateEnvelopeBody(t *testing.T) {
	if err := ValidateEnvelopeBody(make([]byte, MaxEnvelopeBody)); err != nil {
		t.Errorf("max-size body should be valid, got %v", err)
	}
	if err := ValidateEnvelopeBody(make([]byte, MaxEnvelopeBody+1)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("over-size body should be ErrTooLarge, got %v", err)
	}
	if err := ValidateEnvelopeBody(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("nil body should be ErrEmpty, got %v", err)
	}
}

func TestValidateEnvelopeWire(t *testing.T) {
	if err := ValidateEnvelopeWire(make([]byte, MaxEnvelopeWire)); err != nil {
		t.Errorf("max-size wire frame should be valid, got %v", err)
	}
	if err := ValidateEnvelopeWire(make([]byte, MaxEnvelopeWire+1)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("over-size wire frame should be ErrTooLarge, got %v", err)
	}
}

func TestValidateToolOutput(t *testing.T) {
	if err := ValidateToolOutput(make([]byte, MaxToolOutput)); err != nil {
		t.Errorf("max-size tool output should be valid, got %v", err)
	}
	if err := ValidateToolOutput(make([]byte, MaxToolOutput+1)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("over-size tool output should be ErrTooLarge, got %v", err)
	}
	// Unlike ValidateSize, empty tool output (a tool that prints nothing) is
	// not itself an error: an invocation can legitimately produce no stdout
	// before the caller inspects its filesystem delta.
	if err := ValidateToolOutput(nil); err != nil {
		t.Errorf("empty tool output should be valid, got %v", err)
	}
}

func TestConstantConsistency(t *testing.T) {
	if MaxEnvelopeWire <= MaxEnvelopeBody {
		t.Errorf("MaxEnvelopeWire (%d) should be > MaxEnvelopeBody (%d)", MaxEnvelopeWire, MaxEnvelopeBody)
	}
	if AEADOverhead <= 0 {
		t.Errorf("AEADOverhead must be positive, got %d", AEADOverhead)
	}
}
