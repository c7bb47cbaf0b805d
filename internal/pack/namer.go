package pack

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/user/stickersmith/internal/types"
)

// Telegram caps pack names at 64 characters and requires the
// "_by_<botusername>" suffix.
const maxNameLen = 64

// Namer derives collision-resistant pack names owned by the bot.
type Namer struct {
	suffix string
}

// NewNamer creates a Namer for the given bot username.
func NewNamer(botUsername string) *Namer {
	return &Namer{suffix: "_by_" + strings.ToLower(botUsername)}
}

// PackName derives a fresh name for the owner. The owner id, a base36
// timestamp and a random segment keep names unique per user and run;
// recreation attempts past the first get an extra _r<attempt> segment
// so a rejected name is never reused.
func (n *Namer) PackName(ownerID int64, attempt int) string {
	base := fmt.Sprintf("s%d_%s_%s", ownerID, strconv.FormatInt(time.Now().Unix(), 36), types.ShortID())
	if attempt > 1 {
		base = fmt.Sprintf("%s_r%d", base, attempt)
	}

	if over := len(base) + len(n.suffix) - maxNameLen; over > 0 {
		base = base[:len(base)-over]
	}
	return base + n.suffix
}
