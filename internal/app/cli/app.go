package cli

import (
	"github.com/urfave/cli/v3"

	"github.com/jinford/nutrilog/internal/core/search"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func userFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "user",
		Usage:    "ユーザーID",
		Required: required,
	}
}

func dateFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "date",
		Usage: "日付 YYYY-MM-DD（省略時は今日）",
	}
}

func summaryCommand(name, usage string, action cli.ActionFunc) *cli.Command {
	return &cli.Command{
		Name:   name,
		Usage:  usage,
		Flags:  []cli.Flag{envFlag(), userFlag(true), dateFlag()},
		Action: action,
	}
}

// NewCommand は nutrilog のコマンドツリーを返す
func NewCommand() *cli.Command {
	return &cli.Command{
		Name:  "nutrilog",
		Usage: "食事の記述から栄養を算出して記録する",
		Commands: []*cli.Command{
			{
				Name:      "log",
				Usage:     "食事の記述を解析する（--save で記録）",
				ArgsUsage: "<食事の内容>",
				Flags: []cli.Flag{
					envFlag(),
					userFlag(false),
					dateFlag(),
					&cli.StringFlag{
						Name:  "meal",
						Usage: "食事区分（breakfast, lunch, dinner, snack）",
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "一致した品目を記録してサマリーを更新する",
					},
				},
				Action: LogAction,
				Commands: []*cli.Command{
					{
						Name:  "delete",
						Usage: "食事記録を削除してその日のサマリーを再計算する",
						Flags: []cli.Flag{
							envFlag(),
							userFlag(true),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "食事記録ID",
								Required: true,
							},
						},
						Action: LogDeleteAction,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "食品の候補を検索する",
				ArgsUsage: "<食品名>",
				Flags: []cli.Flag{
					envFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "候補数",
						Value: search.DefaultCandidateLimit,
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "検索モード（hybrid, lexical。省略時は設定値）",
					},
				},
				Action: SearchAction,
			},
			{
				Name:  "summary",
				Usage: "保存済みの栄養サマリーを表示する",
				Commands: []*cli.Command{
					summaryCommand("day", "日次サマリー", SummaryDayAction),
					summaryCommand("week", "週次サマリー（月曜始まり）", SummaryWeekAction),
					summaryCommand("month", "月次サマリー", SummaryMonthAction),
					summaryCommand("recalculate", "日次サマリーを記録から再計算する", SummaryRecalculateAction),
				},
			},
			{
				Name:  "serve",
				Usage: "MCP サーバーを起動する",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "transport",
						Usage: "stdio または http（省略時は MCP_TRANSPORT）",
					},
					&cli.IntFlag{
						Name:  "port",
						Usage: "HTTP ポート（省略時は MCP_PORT）",
					},
				},
				Action: ServeAction,
			},
			{
				Name:  "db",
				Usage: "データベース管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "migrate",
						Usage:  "スキーマを適用する",
						Flags:  []cli.Flag{envFlag()},
						Action: DBMigrateAction,
					},
				},
			},
			{
				Name:  "foods",
				Usage: "食品データ管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "embed",
						Usage: "ベクトル未設定の食品に埋め込みを補完する",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "batch",
								Usage: "1リクエストあたりの件数（省略時は OPENAI_EMBEDDING_BATCH_SIZE）",
							},
						},
						Action: FoodsEmbedAction,
					},
				},
			},
		},
	}
}
