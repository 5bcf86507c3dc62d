package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"fintank/internal/ledger"
	"fintank/internal/money"
	"fintank/internal/ocean"

	"github.com/fatih/color"
	"github.com/mdp/qrterminal/v3"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printHeader(msg string) {
	accent.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		line, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line != "" {
			return line, nil
		}
		printWarn("value is required")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	line, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads without echo so wallet signatures stay off the scrollback.
func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// promptPearls reads a pearl amount and converts it to nanopearls.
func promptPearls(label string) (int64, error) {
	for {
		raw, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f <= 0 {
			printWarn("enter a positive amount, e.g. 1.5")
			continue
		}
		return money.ToNanos(f), nil
	}
}

func renderOcean(v ocean.OceanView) {
	printHeader("The Ocean")
	mode := "calm"
	printer := neutral
	if v.IsStorm {
		mode = "STORM (exits closed)"
		printer = danger
	}
	printer.Printf("  mode          %s\n", mode)
	neutral.Printf("  fish          %d\n", v.TotalFishCount)
	neutral.Printf("  pool balance  %s pearls\n", money.FormatPearl(v.BalanceNanos))
	neutral.Printf("  total shares  %d\n", v.TotalShares)
	neutral.Printf("  next change   %s\n", v.NextModeChange.Local().Format(time.RFC822))
}

func renderFish(f ocean.FishView) {
	printer := success
	if f.Status != ocean.StatusAlive {
		printer = danger
	}
	printer.Printf("%s  [%s]\n", f.Name, f.Status)
	neutral.Printf("  id        %s\n", f.ID)
	neutral.Printf("  owner     %s\n", f.OwnerUserID)
	neutral.Printf("  worth     %s pearls (share %d)\n", money.FormatPearl(f.ValueNanos), f.Share)
	neutral.Printf("  version   %d\n", f.Version)
	neutral.Printf("  hungry    %s\n", f.HungryAt.Local().Format(time.RFC822))
	neutral.Printf("  can hunt  %s\n", f.CanHuntAfter.Local().Format(time.RFC822))
	if f.IsProtected && f.ProtectionEndsAt != nil {
		warn.Printf("  protected until %s\n", f.ProtectionEndsAt.Local().Format(time.RFC822))
	}
	if f.MarkedByFishID != "" && f.MarkExpiresAt != nil {
		danger.Printf("  marked by %s until %s\n", f.MarkedByFishID, f.MarkExpiresAt.Local().Format(time.RFC822))
	}
}

func renderFishList(fish []ocean.FishView) {
	if len(fish) == 0 {
		printWarn("no fish yet; run `fin spawn`")
		return
	}
	for _, f := range fish {
		renderFish(f)
		fmt.Println()
	}
}

func renderEvents(events []ocean.EventView) {
	if len(events) == 0 {
		printWarn("no events")
		return
	}
	for _, e := range events {
		neutral.Printf("  %s  %-11s %s pearls  %s\n",
			e.CreatedAt.Local().Format("Jan 02 15:04"), e.Kind,
			money.FormatPearl(e.AmountNanos), e.Detail)
	}
}

func renderLedger(entries []ledger.Entry) {
	if len(entries) == 0 {
		printWarn("ledger is empty")
		return
	}
	for _, e := range entries {
		printer := success
		sign := "+"
		if e.DeltaNanos < 0 {
			printer = danger
			sign = ""
		}
		printer.Printf("  %s  %s%s pearls  %s\n",
			e.CreatedAt.Local().Format("Jan 02 15:04"),
			sign, money.FormatPearl(e.DeltaNanos), e.Reason)
	}
}

func renderWithdrawals(ws []ledger.Withdrawal) {
	if len(ws) == 0 {
		printWarn("no withdrawals")
		return
	}
	for _, w := range ws {
		printer := neutral
		switch w.Status {
		case ledger.WithdrawalDispatched:
			printer = success
		case ledger.WithdrawalRejected, ledger.WithdrawalFailed:
			printer = danger
		}
		printer.Printf("  %s  %-10s %s pearls -> %s (%s)\n",
			w.CreatedAt.Local().Format("Jan 02 15:04"), w.Status,
			money.FormatPearl(w.AmountNanos), w.ToAddress, w.Network)
		if w.TxHash != "" {
			neutral.Printf("      tx %s\n", w.TxHash)
		}
	}
}

// renderDepositQR draws the deposit instructions as a terminal QR code so a
// wallet app can scan address and memo in one go.
func renderDepositQR(intent ledger.DepositIntent) {
	printHeader("Deposit " + money.FormatPearl(intent.AmountNanos) + " " + intent.Asset)
	neutral.Printf("  address  %s\n", intent.DepositAddress)
	warn.Printf("  memo     %s  (required, or the deposit cannot be matched)\n", intent.Memo)
	fmt.Println()
	payload := fmt.Sprintf("%s?asset=%s&amount=%s&memo=%s",
		intent.DepositAddress, intent.Asset, money.FormatPearl(intent.AmountNanos), intent.Memo)
	qrterminal.GenerateWithConfig(payload, qrterminal.Config{
		Level:     qrterminal.M,
		Writer:    os.Stdout,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	})
}
