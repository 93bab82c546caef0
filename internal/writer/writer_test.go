// internal/writer/writer_test.go
package writer

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/modbus-bridge/internal/modbus"
	"github.com/tamzrod/modbus-bridge/internal/model"
	"github.com/tamzrod/modbus-bridge/internal/store"
)

// ---- fakes ----

type fakeStore struct {
	writeMaps map[int64][]model.Map
	items     []model.MonitoringItem
	requests  []model.WriteRequest
}

func (f *fakeStore) ListEnabledControllers(ctx context.Context) ([]model.Controller, error) {
	return nil, nil
}

func (f *fakeStore) ListMaps(ctx context.Context, controllerID int64, dir model.Direction) ([]model.Map, error) {
	if dir != model.DirectionWrite {
		return nil, nil
	}
	return f.writeMaps[controllerID], nil
}

func (f *fakeStore) ListMonitoringItems(ctx context.Context) ([]model.MonitoringItem, error) {
	return f.items, nil
}

func (f *fakeStore) ListPendingWriteRequests(ctx context.Context) ([]model.WriteRequest, error) {
	return f.requests, nil
}

type fakeTransport struct {
	opened int
	closed int

	wroteRegs    []uint16
	wroteRegAddr uint16
	wroteBits    []bool
	wroteBitAddr uint16
}

func (f *fakeTransport) ReadCoils(addr, qty uint16) ([]bool, error) { return make([]bool, qty), nil }
func (f *fakeTransport) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	return make([]uint16, qty), nil
}

func (f *fakeTransport) WriteCoils(addr uint16, bits []bool) error {
	f.wroteBitAddr = addr
	f.wroteBits = append([]bool(nil), bits...)
	return nil
}

func (f *fakeTransport) WriteRegisters(addr uint16, regs []uint16) error {
	f.wroteRegAddr = addr
	f.wroteRegs = append([]uint16(nil), regs...)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed++
	return nil
}

func newWriter(fs *fakeStore, ft *fakeTransport) *Writer {
	open := func(c model.Controller, timeout time.Duration) (modbus.Client, error) {
		ft.opened++
		return ft, nil
	}
	return New(fs, store.NewItemCatalog(fs), open, Config{
		Timeout:       time.Second,
		CatalogMaxAge: time.Minute,
	}, zap.NewNop())
}

// ---- tests ----

func TestWriter_DenormalizedFloat(t *testing.T) {
	// "75.5" on a 0..100 -> 0..1000 scale lands as 755.0 on the wire.
	c := model.Controller{
		ID: 1, DataType: model.TypeFloat, StartAddress: 0, Length: 2,
		WordOrder: model.OrderBig,
	}
	fs := &fakeStore{
		writeMaps: map[int64][]model.Map{
			1: {{ItemID: 5, Position: 0, Direction: model.DirectionWrite}},
		},
		items: []model.MonitoringItem{{
			ID: 5, ScaleEnabled: true,
			NormalizedMin: 0, NormalizedMax: 100,
			ScaledMin: 0, ScaledMax: 1000,
		}},
		requests: []model.WriteRequest{{ItemID: 5, Value: "75.5", DurationSec: 0}},
	}
	ft := &fakeTransport{}

	if err := newWriter(fs, ft).Run(context.Background(), c); err != nil {
		t.Fatalf("Run err=%v", err)
	}

	r1, r2, err := modbus.FloatToRegisters(755.0, model.OrderBig)
	if err != nil {
		t.Fatalf("encode err=%v", err)
	}
	if len(ft.wroteRegs) != 2 || ft.wroteRegs[0] != r1 || ft.wroteRegs[1] != r2 {
		t.Fatalf("wrote %#v, want [%#x %#x]", ft.wroteRegs, r1, r2)
	}
	if ft.closed != 1 {
		t.Fatalf("client closed %d times, want 1", ft.closed)
	}
}

func TestWriter_Staleness(t *testing.T) {
	base := time.Unix(1700000000, 0)
	mkStore := func(durationSec int64) *fakeStore {
		return &fakeStore{
			writeMaps: map[int64][]model.Map{
				1: {{ItemID: 5, Position: 0, Direction: model.DirectionWrite}},
			},
			items: []model.MonitoringItem{{ID: 5}},
			requests: []model.WriteRequest{{
				ItemID: 5, Value: "9",
				RequestedAt: base.Unix(), DurationSec: durationSec,
			}},
		}
	}
	c := model.Controller{ID: 1, DataType: model.TypeInt, StartAddress: 0, Length: 1}

	cases := []struct {
		name     string
		duration int64
		now      time.Time
		want     uint16
	}{
		{"expired leaves zero default", 10, base.Add(11 * time.Second), 0},
		{"fresh request honored", 10, base.Add(9 * time.Second), 9},
		{"zero duration never expires", 0, base.Add(1000 * time.Hour), 9},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ft := &fakeTransport{}
			w := newWriter(mkStore(tc.duration), ft)
			w.now = func() time.Time { return tc.now }

			if err := w.Run(context.Background(), c); err != nil {
				t.Fatalf("Run err=%v", err)
			}
			if len(ft.wroteRegs) != 1 || ft.wroteRegs[0] != tc.want {
				t.Fatalf("wrote %#v, want [%d]", ft.wroteRegs, tc.want)
			}
		})
	}
}

func TestWriter_UnparseableValueZeroes(t *testing.T) {
	c := model.Controller{ID: 1, DataType: model.TypeInt, StartAddress: 0, Length: 1}
	fs := &fakeStore{
		writeMaps: map[int64][]model.Map{
			1: {{ItemID: 5, Position: 0, Direction: model.DirectionWrite}},
		},
		items:    []model.MonitoringItem{{ID: 5}},
		requests: []model.WriteRequest{{ItemID: 5, Value: "not-a-number"}},
	}
	ft := &fakeTransport{}

	if err := newWriter(fs, ft).Run(context.Background(), c); err != nil {
		t.Fatalf("Run err=%v", err)
	}
	if len(ft.wroteRegs) != 1 || ft.wroteRegs[0] != 0 {
		t.Fatalf("wrote %#v, want zeroed buffer", ft.wroteRegs)
	}
}

func TestWriter_IntClamp(t *testing.T) {
	cases := []struct {
		value string
		want  uint16
	}{
		{"40000", 0x7FFF},  // clamp high
		{"-40000", 0x8000}, // clamp low
		{"-1", 0xFFFF},     // in range, two's complement
	}
	c := model.Controller{ID: 1, DataType: model.TypeInt, StartAddress: 0, Length: 1}

	for _, tc := range cases {
		fs := &fakeStore{
			writeMaps: map[int64][]model.Map{
				1: {{ItemID: 5, Position: 0, Direction: model.DirectionWrite}},
			},
			items:    []model.MonitoringItem{{ID: 5}},
			requests: []model.WriteRequest{{ItemID: 5, Value: tc.value}},
		}
		ft := &fakeTransport{}
		if err := newWriter(fs, ft).Run(context.Background(), c); err != nil {
			t.Fatalf("value=%s Run err=%v", tc.value, err)
		}
		if ft.wroteRegs[0] != tc.want {
			t.Fatalf("value=%s wrote %#x, want %#x", tc.value, ft.wroteRegs[0], tc.want)
		}
	}
}

func TestWriter_CoilBuffer(t *testing.T) {
	c := model.Controller{ID: 1, DataType: model.TypeBoolean, StartAddress: 0, Length: 8}
	fs := &fakeStore{
		writeMaps: map[int64][]model.Map{
			1: {{ItemID: 5, Position: 2, Direction: model.DirectionWrite}},
		},
		items:    []model.MonitoringItem{{ID: 5}},
		requests: []model.WriteRequest{{ItemID: 5, Value: "1"}},
	}
	ft := &fakeTransport{}

	if err := newWriter(fs, ft).Run(context.Background(), c); err != nil {
		t.Fatalf("Run err=%v", err)
	}
	if len(ft.wroteBits) != 8 {
		t.Fatalf("wrote %d coils, want 8", len(ft.wroteBits))
	}
	for i, b := range ft.wroteBits {
		want := i == 2
		if b != want {
			t.Fatalf("coil %d = %v, want %v", i, b, want)
		}
	}
}

func TestWriter_TranslatedStartAddress(t *testing.T) {
	// Classic 4xxxx numbering: configured 43028 goes on the wire at 3027.
	c := model.Controller{
		ID: 1, DataType: model.TypeInt,
		StartAddress: 43028, Length: 1, Convention: model.Base40001,
	}
	fs := &fakeStore{
		writeMaps: map[int64][]model.Map{
			1: {{ItemID: 5, Position: 0, Direction: model.DirectionWrite}},
		},
		items:    []model.MonitoringItem{{ID: 5}},
		requests: []model.WriteRequest{{ItemID: 5, Value: "1"}},
	}
	ft := &fakeTransport{}

	if err := newWriter(fs, ft).Run(context.Background(), c); err != nil {
		t.Fatalf("Run err=%v", err)
	}
	if ft.wroteRegAddr != 3027 {
		t.Fatalf("wrote at %d, want 3027", ft.wroteRegAddr)
	}
}

func TestWriter_NoMapsNoConnection(t *testing.T) {
	c := model.Controller{ID: 1, DataType: model.TypeInt, Length: 1}
	ft := &fakeTransport{}

	if err := newWriter(&fakeStore{}, ft).Run(context.Background(), c); err != nil {
		t.Fatalf("Run err=%v", err)
	}
	if ft.opened != 0 {
		t.Fatalf("connection opened %d times for a mapless controller", ft.opened)
	}
}

func TestWriter_OversizedWindowRejected(t *testing.T) {
	c := model.Controller{ID: 1, DataType: model.TypeInt, Length: 124}
	fs := &fakeStore{
		writeMaps: map[int64][]model.Map{
			1: {{ItemID: 5, Position: 0, Direction: model.DirectionWrite}},
		},
	}
	ft := &fakeTransport{}

	if err := newWriter(fs, ft).Run(context.Background(), c); err == nil {
		t.Fatal("expected oversized window to be rejected")
	}
	if ft.opened != 0 {
		t.Fatal("no connection should be opened for a rejected window")
	}
}

func TestWriter_NewestRequestWins(t *testing.T) {
	c := model.Controller{ID: 1, DataType: model.TypeInt, StartAddress: 0, Length: 1}
	fs := &fakeStore{
		writeMaps: map[int64][]model.Map{
			1: {{ItemID: 5, Position: 0, Direction: model.DirectionWrite}},
		},
		items: []model.MonitoringItem{{ID: 5}},
		requests: []model.WriteRequest{
			{ItemID: 5, Value: "1", RequestedAt: 100},
			{ItemID: 5, Value: "2", RequestedAt: 200},
			{ItemID: 9, Value: "3", RequestedAt: 300}, // other item
		},
	}
	ft := &fakeTransport{}

	if err := newWriter(fs, ft).Run(context.Background(), c); err != nil {
		t.Fatalf("Run err=%v", err)
	}
	if ft.wroteRegs[0] != 2 {
		t.Fatalf("wrote %d, want the newest request's value 2", ft.wroteRegs[0])
	}
}
