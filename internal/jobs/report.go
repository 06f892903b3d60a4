package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/case-battles/internal/common"
	"serotonyl.ru/case-battles/internal/features/ledger"
)

// FormatReport собирает текст отчёта RTU.
// Строки с |drift| > alert помечаются ⚠️.
func FormatReport(rows []ledger.ReportRow, alert float64, at time.Time) string {
	threshold := decimal.NewFromFloat(alert)

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Отчёт RTU на %s\n\n", at.Format("02.01.2006 15:04"))

	flagged := 0
	for _, r := range rows {
		mark := "✅"
		if r.Drift.Abs().GreaterThan(threshold) {
			mark = "⚠️"
			flagged++
		}
		fmt.Fprintf(&sb, "%s %s / %s\n", mark, r.CaseID, r.TokenSymbol)
		fmt.Fprintf(&sb, "   цель %s%% | факт %s%% | откл. %s п.п.\n",
			r.TargetRTU.StringFixed(2), r.ActualRTU.StringFixed(2), common.FormatSigned(r.Drift, 2))
		fmt.Fprintf(&sb, "   потрачено %s | выдано %s | буфер %s\n",
			common.FormatUSDT(r.TotalSpentUSDT),
			common.FormatAmount(r.TotalTokenIssued, 4),
			common.FormatAmount(r.BufferDebtToken, 4))
	}

	fmt.Fprintf(&sb, "\nЛеджеров: %d, с отклонением выше %s п.п.: %d",
		len(rows), threshold.StringFixed(2), flagged)
	return sb.String()
}
