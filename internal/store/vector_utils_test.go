package store

import (
	"reflect"
	"testing"
)

func TestParseVectorJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []float32
		wantErr bool
	}{
		{name: "Simple compact", input: "[1.1,2.2]", want: []float32{1.1, 2.2}},
		{name: "With spaces", input: "[ 1.1 , 2.2 ]", want: []float32{1.1, 2.2}},
		{name: "Empty array", input: "[]", want: []float32{}},
		{name: "Negative and exponent", input: "[0,-1.5,1e-3]", want: []float32{0, -1.5, 0.001}},
		{name: "Invalid format", input: "not json", wantErr: true},
		{name: "Unterminated", input: "[1,2", wantErr: true},
		{name: "Bad number", input: "[1,x]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVectorJSON([]byte(tt.input), nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseVectorJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr || (len(got) == 0 && len(tt.want) == 0) {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseVectorJSON() = %v, want %v", got, tt.want)
			}
		})
	}
}
