package channel

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/mdp/qrterminal/v3"
	qrcode "github.com/skip2/go-qrcode"
)

// QRDisplay renders pairing codes to the terminal and persists a PNG so
// the code can also be scanned off a headless host.
type QRDisplay struct {
	ImagePath string // empty disables PNG persistence
	Out       io.Writer
	Logger    *slog.Logger
}

// ShowPairingCode implements router.PairingDisplay. PNG persistence
// failures are logged, never fatal.
func (q *QRDisplay) ShowPairingCode(code string) {
	fmt.Fprintln(q.Out, "Scan this QR code with WhatsApp (Settings > Linked devices > Link a device):")
	qrterminal.GenerateHalfBlock(code, qrterminal.L, q.Out)

	if q.ImagePath == "" {
		return
	}
	if err := qrcode.WriteFile(code, qrcode.Medium, 256, q.ImagePath); err != nil {
		q.Logger.Warn("could not persist QR image", "path", q.ImagePath, "err", err)
		return
	}
	q.Logger.Info("QR image saved", "path", q.ImagePath)
}
