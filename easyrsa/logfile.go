package easyrsa

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// LogDelimiter terminates every entry in an issuer's easyrsa.log.
const LogDelimiter = "--------------------------------------------------"

const logTimeLayout = "1/2/2006, 3:04:05 PM"

// AppendLog appends "<message> [<timestamp>]" and the delimiter line to path.
func AppendLog(path, message string, at time.Time) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "%s [%s]\n%s\n", strings.TrimRight(message, "\n"), at.Format(logTimeLayout), LogDelimiter)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
