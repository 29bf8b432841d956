package heimdall

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/devctl/internal/argsmodel"
	"github.com/danmuck/devctl/internal/classify"
	"github.com/danmuck/devctl/internal/testutil/fakebin"
	"github.com/danmuck/devctl/internal/testutil/testlog"
	"github.com/danmuck/devctl/internal/tools"
)

func newClient(t *testing.T, body string, cfg argsmodel.Config) *Client {
	t.Helper()
	c, err := New(tools.Spec{
		Executable: fakebin.Write(t, "heimdall", body),
		Config:     cfg,
		KillGrace:  200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new heimdall: %v", err)
	}
	return c.WithPollInterval(20 * time.Millisecond)
}

const pitOutput = `Heimdall v1.4.2

--- Entry #0 ---
Binary Type: 0 (AP)
Device Type: 2 (MMC)
Identifier: 1
Attributes: 5 (Read/Write)
Update Attributes: 1 (FOTA)
Partition Block Size/Offset: 0
Partition Block Count: 8192
File Offset (Obsolete): 0
File Size (Obsolete): 0
Partition Name: BOOTLOADER
Flash Filename: sboot.bin
FOTA Filename:

--- Entry #1 ---
Binary Type: 0 (AP)
Device Type: 2 (MMC)
Identifier: 20
Attributes: 5 (Read/Write)
Partition Block Size/Offset: 61440
Partition Block Count: 81920
Partition Name: BOOT
Flash Filename: boot.img
FOTA Filename:
`

func TestParsePit(t *testing.T) {
	testlog.Start(t)
	want := []PitEntry{
		{Index: 0, DeviceType: 2, Identifier: 1, Attributes: 5, BlockCount: 8192, PartitionName: "BOOTLOADER", FlashFilename: "sboot.bin"},
		{Index: 1, DeviceType: 2, Identifier: 20, Attributes: 5, BlockOffset: 61440, BlockCount: 81920, PartitionName: "BOOT", FlashFilename: "boot.img"},
	}
	if got := parsePit(pitOutput); !reflect.DeepEqual(got, want) {
		t.Fatalf("want %+v, got %+v", want, got)
	}
}

func TestPrintPitArgsAfterAction(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	pit := filepath.Join(dir, "pit.txt")
	if err := os.WriteFile(pit, []byte(pitOutput), 0o644); err != nil {
		t.Fatalf("write pit: %v", err)
	}
	script := `[ "$*" = "print-pit --no-reboot --file device.pit" ] || { echo "bad args: $*" >&2; exit 2; }
cat ` + pit
	c := newClient(t, script, argsmodel.Config{"noReboot": true})

	entries, err := c.PrintPit(context.Background(), "device.pit")
	if err != nil {
		t.Fatalf("print-pit: %v", err)
	}
	if len(entries) != 2 || entries[1].PartitionName != "BOOT" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestPrintPitEmpty(t *testing.T) {
	testlog.Start(t)
	c := newClient(t, `echo "Heimdall v1.4.2"`, nil)
	if _, err := c.PrintPit(context.Background(), ""); !errors.Is(err, classify.ErrUnexpectedOutput) {
		t.Fatalf("expected unexpected-output, got %v", err)
	}
}

func TestRules(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		stderr string
		want   error
	}{
		{"ERROR: Failed to detect compatible download-mode device.", classify.ErrNoDevice},
		{"ERROR: Failed to access device. libusb error: -3", classify.ErrUnauthorized},
		{"ERROR: Failed to claim interface", classify.ErrDeviceOffline},
		{"ERROR: Failed to receive handshake response.", classify.ErrDeviceOffline},
	}
	for _, tc := range cases {
		c := newClient(t, `echo "`+tc.stderr+`" >&2; exit 1`, nil)
		if err := c.Detect(context.Background()); !errors.Is(err, tc.want) {
			t.Fatalf("stderr %q: want %v, got %v", tc.stderr, tc.want, err)
		}
	}
}

func TestHasAccess(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	if ok, err := newClient(t, `echo "Device detected"`, nil).HasAccess(ctx); err != nil || !ok {
		t.Fatalf("expected access, got ok=%v err=%v", ok, err)
	}
	missing := `echo "ERROR: Failed to detect compatible download-mode device." >&2; exit 1`
	if ok, err := newClient(t, missing, nil).HasAccess(ctx); err != nil || ok {
		t.Fatalf("expected no access, got ok=%v err=%v", ok, err)
	}
}

func TestWaitForDeviceCancelled(t *testing.T) {
	testlog.Start(t)
	c := newClient(t, `echo "ERROR: Failed to detect compatible download-mode device." >&2; exit 1`, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := c.WaitForDevice(ctx); !errors.Is(err, classify.ErrKilled) {
		t.Fatalf("expected killed, got %v", err)
	}
}

type progressLog struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressLog) add(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func (p *progressLog) get() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.values...)
}

const flashScript = `[ "$*" = "flash --BOOT boot.img --RECOVERY recovery.img" ] || { echo "ERROR: bad args $*" >&2; exit 2; }
echo "Initialising connection..."
echo "Uploading BOOT"
printf '0%%\r50%%\r100%%\n'
echo "BOOT upload successful"
echo "Uploading RECOVERY"
printf '0%%\r50%%\r100%%\n'
echo "RECOVERY upload successful"`

func TestFlashProgress(t *testing.T) {
	testlog.Start(t)
	c := newClient(t, flashScript, nil)
	rec := &progressLog{}
	images := []Image{
		{Partition: "BOOT", File: "boot.img"},
		{Partition: "RECOVERY", File: "recovery.img"},
	}
	if err := c.Flash(context.Background(), images, rec.add); err != nil {
		t.Fatalf("flash: %v", err)
	}
	if got, want := rec.get(), []float64{0, 0.25, 0.5, 0.75, 0.99, 1}; !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestFlashFailure(t *testing.T) {
	testlog.Start(t)
	script := `echo "Uploading BOOT"
printf '0%%\r40%%\n'
echo "ERROR: Failed to receive handshake response." >&2
exit 1`
	c := newClient(t, script, nil)
	rec := &progressLog{}
	err := c.Flash(context.Background(), []Image{{Partition: "BOOT", File: "boot.img"}}, rec.add)
	if !errors.Is(err, classify.ErrDeviceOffline) {
		t.Fatalf("expected device-offline, got %v", err)
	}
	got := rec.get()
	if got[len(got)-1] == 1 {
		t.Fatalf("failed flash reported completion: %v", got)
	}
}

func TestFlashNoImages(t *testing.T) {
	testlog.Start(t)
	c := newClient(t, `exit 9`, nil)
	rec := &progressLog{}
	if err := c.Flash(context.Background(), nil, rec.add); err != nil {
		t.Fatalf("flash: %v", err)
	}
	if got, want := rec.get(), []float64{0, 1}; !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}
