package balances

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

var amountPrinter = message.NewPrinter(language.English)

func formatAmount(v float64) string {
	return amountPrinter.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	if _, err := s.buf.WriteString(line); err != nil {
		return err
	}
	return nil
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func (s *csvStreamer) Close() error {
	return s.Flush()
}

func writeTrialBalanceCSV(w io.Writer, tb TrialBalance, start, end time.Time) error {
	streamer := newCSVStreamer(w)
	if err := streamer.writeComment("# Report: Trial Balance"); err != nil {
		return err
	}
	if err := streamer.writeComment(fmt.Sprintf("# Period: %s .. %s", start.Format("2006-01-02"), end.Format("2006-01-02"))); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{"Group", "Account Code", "Account Name", "Opening", "Debit", "Credit", "Closing"}); err != nil {
		return err
	}
	for _, grp := range tb.Groups {
		for _, acc := range grp.Accounts {
			if err := streamer.writeRow([]string{
				grp.Key,
				acc.Code,
				acc.Name,
				formatAmount(acc.Opening),
				formatAmount(acc.Debit),
				formatAmount(acc.Credit),
				formatAmount(acc.Closing),
			}); err != nil {
				return err
			}
		}
		if err := streamer.writeRow([]string{
			grp.Key, "", "Subtotal",
			formatAmount(grp.Opening),
			formatAmount(grp.Debit),
			formatAmount(grp.Credit),
			formatAmount(grp.Closing),
		}); err != nil {
			return err
		}
	}
	if err := streamer.writeRow([]string{"", "", "", "", "", "", ""}); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{
		"Totals", "", "",
		formatAmount(tb.TotalOpening),
		formatAmount(tb.TotalDebit),
		formatAmount(tb.TotalCredit),
		formatAmount(tb.TotalClosing),
	}); err != nil {
		return err
	}
	return streamer.Close()
}
