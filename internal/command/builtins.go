package command

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"linesrv/internal/metrics"
)

const helpText = "HELP: Shows this help.\r\n" +
	"QUIT: Exit the session.\r\n" +
	"SMS:  Send a short messsage.\r\n" +
	"MOTD: Message of the day."

const motdText = "Roses are red.\r\n" +
	"My screen is blue.\r\n" +
	"I can only think to myself,\r\n" +
	"What on Earth did I do?"

// Replies sent under ServerTag.
const (
	MsgBadAddress         = "Bad Address Line. Format: #uid-000"
	MsgStorageUnavailable = "Storage unavailable, message not saved."
)

// addressRE matches a short-message address and captures its
// three-digit identifier.
var addressRE = regexp.MustCompile(`^#(\d{3})-000$`)

// ParseAddress returns the identifier of an address such as "#001-000".
func ParseAddress(addr string) (uid string, ok bool) {
	m := addressRE.FindStringSubmatch(addr)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (d *Dispatcher) help(w Responder) error {
	text := helpText
	for _, key := range d.registry.Keys() {
		h, _ := d.registry.Lookup(key)
		desc, ok := h.(Describer)
		if !ok {
			continue
		}
		text += fmt.Sprintf("\r\n%-5s %s", strings.ToUpper(key)+":", desc.Summary())
	}
	return w.SendMessage(text, "")
}

func motd(w Responder) error {
	return w.SendMessage(motdText, "")
}

// sms validates the address in args[1], makes sure the identifier's
// directory exists and stores args[2:] as a message when a body is
// given.  Success is silent.
func (d *Dispatcher) sms(ctx context.Context, w Responder, args []string) error {
	var addr string
	if len(args) > 1 {
		addr = args[1]
	}
	uid, ok := ParseAddress(addr)
	if !ok {
		d.metrics.RecordError(metrics.ErrorArgument)
		return w.SendMessage(MsgBadAddress, ServerTag)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	hasBody := len(args) > 2 && args[2] != ""
	err := d.breaker.Execute(func() error {
		if err := d.store.EnsureDir(uid); err != nil {
			return err
		}
		if !hasBody {
			return nil
		}
		path, err := d.store.Write(uid, strings.Join(args[2:], " "))
		if err != nil {
			return err
		}
		d.logger.Verbose("stored message for %s at %s", uid, path)
		return nil
	})
	if err != nil {
		d.metrics.RecordError(metrics.ErrorStorage)
		d.logger.Error("sms %s: %v", uid, err)
		return w.SendMessage(MsgStorageUnavailable, ServerTag)
	}
	if hasBody {
		d.metrics.MessageStored()
	}
	return nil
}
