package bytesize

import "testing"

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		input   string
		want    ByteSize
		wantErr bool
	}{
		{input: "0", want: 0},
		{input: "4096", want: 4096},
		{input: "1024B", want: 1024},
		{input: "1Ki", want: 1024},
		{input: "1KiB", want: 1024},
		{input: "100Mi", want: 100 * MiB},
		{input: "2Gi", want: 2 * GiB},
		{input: "1Ti", want: TiB},
		{input: "1KB", want: 1000},
		{input: "100MB", want: 100 * MB},
		{input: "1GB", want: GB},
		{input: "1gi", want: GiB},
		{input: "1GI", want: GiB},
		{input: "  1Gi  ", want: GiB},
		{input: "1 Gi", want: GiB},
		{input: "1.5Mi", want: ByteSize(1.5 * float64(MiB))},
		{input: "0.5Gi", want: ByteSize(0.5 * float64(GiB))},
		{input: "", wantErr: true},
		{input: "   ", wantErr: true},
		{input: "1Xi", wantErr: true},
		{input: "-1Gi", wantErr: true},
		{input: "Gi", wantErr: true},
		{input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseByteSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseByteSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	if err := b.UnmarshalText([]byte("16Mi")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if b != 16*MiB {
		t.Errorf("got %d, want %d", b, 16*MiB)
	}
	if err := b.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		in   ByteSize
		want string
	}{
		{512, "512B"},
		{2 * KiB, "2.00KiB"},
		{100 * MiB, "100.00MiB"},
		{GiB, "1.00GiB"},
		{ByteSize(1.5 * float64(GiB)), "1.50GiB"},
		{2 * TiB, "2.00TiB"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("ByteSize(%d).String() = %q, want %q", uint64(tt.in), got, tt.want)
		}
	}
}
