package proto

import (
	"bytes"
	"testing"
)

func TestBuildPollingExtended_S1(t *testing.T) {
	got, err := BuildPollingExtended(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0x49, 0x02, 0x40, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x46}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X, want % X", got, want)
	}
}

func TestBuildLightControl_OnChannel1_S2(t *testing.T) {
	frame, err := BuildLightControl(10, 1, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd := frame[2]; cmd != 0x51 {
		t.Fatalf("command = 0x%02X, want 0x51", cmd)
	}
	if frame[3] != LightRelayOn {
		t.Fatalf("data[0] = 0x%02X, want 0x%02X", frame[3], LightRelayOn)
	}
}

func TestBuildLightControl_OffChannel5_S3(t *testing.T) {
	frame, err := BuildLightControl(10, 5, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd := frame[2]; cmd != 0x65 {
		t.Fatalf("command = 0x%02X, want 0x65", cmd)
	}
	if frame[3] != LightRelayOff {
		t.Fatalf("data[0] = 0x%02X, want 0x%02X", frame[3], LightRelayOff)
	}
}

func TestParsePollingStatus_S4(t *testing.T) {
	raw := []byte{0x49, 0x02, 0x40, 0x11, 0x05, 0x00, 0x04, 0x16, 0x00, 0x00, 0x02, 0x02, 0x01, 0x46}
	frame, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := ParsePollingStatus(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if status.DeviceType != 0x11 {
		t.Errorf("device_type = 0x%02X, want 0x11", status.DeviceType)
	}
	if status.Outputs != 0b101 {
		t.Errorf("outputs = %#b, want %#b", status.Outputs, 0b101)
	}
	if status.Dimmer0to10 != 4 {
		t.Errorf("dimmer_0_10 = %d, want 4", status.Dimmer0to10)
	}
	if status.Temperature != 22.0 {
		t.Errorf("temperature = %v, want 22.0", status.Temperature)
	}
	if status.TemperatureSetpoint != 2.2 {
		t.Errorf("setpoint = %v, want 2.2", status.TemperatureSetpoint)
	}
	if status.Season != 1 {
		t.Errorf("season = %d, want 1", status.Season)
	}
}

func TestBuildShutterControl_OutOfRange_S5(t *testing.T) {
	_, err := BuildShutterControl(7, 5, true)
	if err == nil {
		t.Fatal("expected error for shutter_index=5")
	}
	if _, ok := err.(*Error); !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
}

func TestParseFrame_FifteenByte_S6(t *testing.T) {
	raw := []byte{
		0x49, 0x02, 0x50, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0x01, 0xF8, 0x46,
	}
	frame, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frame.Extra) != 1 || frame.Extra[0] != 0xF8 {
		t.Fatalf("extra = % X, want [F8]", frame.Extra)
	}
}

func TestBuildFrame_ParseFrame_RoundTrip_Property(t *testing.T) {
	for address := 1; address <= 254; address += 13 {
		for command := 0; command <= 0xFF; command += 17 {
			for dataLen := 0; dataLen <= DataLength; dataLen++ {
				data := make([]int, dataLen)
				for i := range data {
					data[i] = (i*7 + 3) & 0xFF
				}

				raw, err := BuildFrame(address, command, data)
				if err != nil {
					t.Fatalf("BuildFrame(%d, %d, %v): %v", address, command, data, err)
				}

				frame, err := ParseFrame(raw)
				if err != nil {
					t.Fatalf("ParseFrame(% X): %v", raw, err)
				}

				if int(frame.Address) != address {
					t.Fatalf("address = %d, want %d", frame.Address, address)
				}
				if int(frame.Command) != command&0xFF {
					t.Fatalf("command = %d, want %d", frame.Command, command&0xFF)
				}
				for i := 0; i < dataLen; i++ {
					if int(frame.Data[i]) != data[i]&0xFF {
						t.Fatalf("data[%d] = %d, want %d", i, frame.Data[i], data[i]&0xFF)
					}
				}
				for i := dataLen; i < DataLength; i++ {
					if frame.Data[i] != 0 {
						t.Fatalf("data[%d] = %d, want 0 (padding)", i, frame.Data[i])
					}
				}
			}
		}
	}
}

func TestBusDimmerToPercent_Monotonic_Property(t *testing.T) {
	prev := -1
	for percent := 0; percent <= 100; percent++ {
		got := BusDimmerToPercent(PercentToBusDimmer(percent))
		if got < prev {
			t.Fatalf("bus_dimmer_to_percent(percent_to_bus_dimmer(%d)) = %d, not monotonic after %d", percent, got, prev)
		}
		prev = got
	}

	if got := BusDimmerToPercent(PercentToBusDimmer(0)); got != 0 {
		t.Errorf("p=0: got %d, want 0", got)
	}
	if got := BusDimmerToPercent(PercentToBusDimmer(100)); got != 100 {
		t.Errorf("p=100: got %d, want 100", got)
	}
}

func TestBuildFrame_InvalidAddress(t *testing.T) {
	for _, addr := range []int{0, -1, 255, 1000} {
		if _, err := BuildFrame(addr, CmdPollingExtended, nil); err == nil {
			t.Errorf("address %d: expected error", addr)
		}
	}
}

func TestBuildFrame_DataTooLong(t *testing.T) {
	data := make([]int, DataLength+1)
	if _, err := BuildFrame(1, CmdPollingExtended, data); err == nil {
		t.Fatal("expected error for oversized data")
	}
}

func TestParseFrame_InvalidLength(t *testing.T) {
	if _, err := ParseFrame(make([]byte, 13)); err == nil {
		t.Fatal("expected error for 13-byte frame")
	}
	if _, err := ParseFrame(make([]byte, 16)); err == nil {
		t.Fatal("expected error for 16-byte frame")
	}
}

func TestBuildSetPointTemperature_NegativeRejected(t *testing.T) {
	if _, err := BuildSetPointTemperature(1, -0.5); err == nil {
		t.Fatal("expected error for negative setpoint")
	}
}

func TestBuildSetSeason_InvalidRejected(t *testing.T) {
	if _, err := BuildSetSeason(1, 2); err == nil {
		t.Fatal("expected error for season=2")
	}
}
