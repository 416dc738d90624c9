// Sample Data Generator
//
// This tool generates a large synthetic data directory for performance testing
// and profiling. It writes a meta.json with card billing rules plus the
// record.csv, transfer.csv and balance.csv exports the loader reads.
//
// Usage:
//
//	go run main.go ./data              # two years of data
//	go run main.go ./data 3650         # Specify the number of days
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	defaultDays = 730
)

type cardSetting struct {
	ClosingDay          int    `json:"closing_day"`
	PaymentOffsetMonths int    `json:"payment_offset_months"`
	PaymentDay          int    `json:"payment_day"`
	WithdrawalAccount   string `json:"withdrawal_account"`
}

var (
	banks  = []string{"楽天銀行", "三井住友銀行", "ゆうちょ銀行"}
	wallet = []string{"現金", "PayPay", "Suica"}

	cards = map[string]cardSetting{
		"楽天カード":   {ClosingDay: -1, PaymentOffsetMonths: 1, PaymentDay: 27, WithdrawalAccount: "楽天銀行"},
		"三井住友カード": {ClosingDay: 15, PaymentOffsetMonths: 1, PaymentDay: 10, WithdrawalAccount: "三井住友銀行"},
		"JCBカード":   {ClosingDay: 15, PaymentOffsetMonths: 2, PaymentDay: 10, WithdrawalAccount: "ゆうちょ銀行"},
	}
	cardNames = []string{"楽天カード", "三井住友カード", "JCBカード"}

	columns = map[string]string{
		"現金": "cash", "PayPay": "paypay", "Suica": "suica",
		"楽天銀行": "rakuten_bank", "三井住友銀行": "smbc_bank", "ゆうちょ銀行": "yucho_bank",
		"楽天カード": "rakuten_card", "三井住友カード": "smbc_card", "JCBカード": "jcb_card",
	}

	categories = [][2]string{
		{"食費", "食料品"}, {"食費", "外食"}, {"日用品", "消耗品"},
		{"交通費", "電車"}, {"趣味・娯楽", "書籍"}, {"水道・光熱費", "電気代"},
		{"通信費", "携帯電話"}, {"衣服・美容", "衣服"}, {"健康・医療", "病院代"},
	}

	places = []string{"スーパー", "コンビニ", "ドラッグストア", "Amazon", "駅", "カフェ", "書店"}
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: generate_sample_data DIR [DAYS]")
		os.Exit(2)
	}
	dir := os.Args[1]
	days := defaultDays
	if len(os.Args) > 2 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			days = n
		}
	}

	if err := run(dir, days); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(dir string, days int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeMeta(filepath.Join(dir, "meta.json")); err != nil {
		return err
	}

	start := time.Date(time.Now().Year()-days/365, 1, 1, 0, 0, 0, 0, time.UTC)

	n, err := writeCSV(filepath.Join(dir, "record.csv"),
		[]string{"日付", "収入/支出", "カテゴリ", "サブカテゴリ", "金額", "店舗/場所", "メモ", "入金/支払い方法", "銀行口座/カード等", "タグ"},
		func(emit func([]string)) { generateRecords(start, days, emit) })
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "record.csv: %d rows\n", n)

	n, err = writeCSV(filepath.Join(dir, "transfer.csv"),
		[]string{"日付", "金額", "出金", "入金", "メモ"},
		func(emit func([]string)) { generateTransfers(start, days, emit) })
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "transfer.csv: %d rows\n", n)

	n, err = writeCSV(filepath.Join(dir, "balance.csv"),
		[]string{"日付", "資産", "金額"},
		func(emit func([]string)) { generateSnapshots(start, days, emit) })
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "balance.csv: %d rows\n", n)

	return nil
}

func writeMeta(path string) error {
	// Registry order is significant, so the object is written by hand.
	registry := "{"
	order := append(append(append([]string{}, wallet...), banks...), cardNames...)
	for i, account := range order {
		if i > 0 {
			registry += ", "
		}
		key, _ := json.Marshal(account)
		value, _ := json.Marshal(columns[account])
		registry += string(key) + ": " + string(value)
	}
	registry += "}"

	settings, err := json.MarshalIndent(cards, "  ", "  ")
	if err != nil {
		return err
	}

	content := fmt.Sprintf("{\n  \"card_settings\": %s,\n  \"accounts_ja_en\": %s\n}\n", settings, registry)
	return os.WriteFile(path, []byte(content), 0o644)
}

func writeCSV(path string, header []string, generate func(emit func([]string))) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	_ = w.Write(header)

	rows := 0
	generate(func(row []string) {
		_ = w.Write(row)
		rows++
	})

	w.Flush()
	if err := w.Error(); err != nil {
		return rows, err
	}
	return rows, f.Close()
}

func dateString(t time.Time) string {
	return t.Format("2006/01/02")
}

func generateRecords(start time.Time, days int, emit func([]string)) {
	for d := 0; d < days; d++ {
		date := start.AddDate(0, 0, d)

		if date.Day() == 25 {
			emit([]string{dateString(date), "収入", "給与", "給料", "280000", "", "", "", "楽天銀行", ""})
		}

		// 0-5 purchases per day
		for i := rand.Intn(6); i > 0; i-- {
			category := categories[rand.Intn(len(categories))]
			amount := 100 + rand.Intn(120)*50

			var account, method string
			switch rand.Intn(4) {
			case 0, 1:
				account = cardNames[rand.Intn(len(cardNames))]
				method = "クレジットカード"
			case 2:
				account = wallet[rand.Intn(len(wallet))]
				method = "電子マネー"
			default:
				account = "現金"
				method = "現金"
			}

			emit([]string{
				date.Add(time.Duration(rand.Intn(14*60)+8*60) * time.Minute).Format("2006/01/02 15:04"),
				"支出",
				category[0],
				category[1],
				strconv.Itoa(amount),
				places[rand.Intn(len(places))],
				"",
				method,
				account,
				"",
			})
		}
	}
}

func generateTransfers(start time.Time, days int, emit func([]string)) {
	for d := 0; d < days; d++ {
		date := start.AddDate(0, 0, d)

		switch date.Day() {
		case 1:
			emit([]string{dateString(date), "30000", "楽天銀行", "現金", "ATM"})
		case 5:
			emit([]string{dateString(date), "5000", "楽天銀行", "Suica", "チャージ"})
			emit([]string{dateString(date), "10000", "楽天銀行", "PayPay", "チャージ"})
		case 26:
			emit([]string{dateString(date), "60000", "楽天銀行", "三井住友銀行", "振替"})
			emit([]string{dateString(date), "40000", "楽天銀行", "ゆうちょ銀行", "振替"})
		}
	}
}

func generateSnapshots(start time.Time, days int, emit func([]string)) {
	opening := map[string]string{
		"現金": "20000", "PayPay": "3000", "Suica": "2000",
		"楽天銀行": "500000", "三井住友銀行": "200000", "ゆうちょ銀行": "150000",
	}
	for _, account := range append(append([]string{}, wallet...), banks...) {
		emit([]string{dateString(start), account, opening[account]})
	}

	// Quarterly cash counts correct drift, as real exports do.
	for d := 90; d < days; d += 90 {
		date := start.AddDate(0, 0, d)
		emit([]string{dateString(date), "現金", strconv.Itoa(10000 + rand.Intn(20)*1000)})
	}
}
