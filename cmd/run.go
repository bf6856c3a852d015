package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"EventSync/internal/service"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func ingestCmd() *cobra.Command {
	var file, source string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "处理一个候选事件批次（--file 本地文件或 --source 已配置来源）",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (file == "") == (source == "") {
				return fmt.Errorf("需要且只能指定 --file 或 --source 之一")
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			var report *service.RunReport
			if file != "" {
				raw, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("读取批次文件失败: %w", err)
				}
				report, err = a.ingest.IngestBatch(cmd.Context(), service.TriggerCLI, raw)
				if err != nil {
					return err
				}
			} else {
				report, err = a.ingest.SyncSource(cmd.Context(), source)
				if err != nil {
					return err
				}
			}
			printReport(cmd.OutOrStdout(), report)
			return report.Err()
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "批次 JSON 文件")
	cmd.Flags().StringVarP(&source, "source", "s", "", "来源名称（config 中 sources 的键）")
	return cmd
}

func maintainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "仅执行维护阶段（去重、归档、孤儿清理）",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := a.pipeline.RunMaintenance(cmd.Context(), service.TriggerCLI)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return report.Err()
		},
	}
}

func printReport(w io.Writer, r *service.RunReport) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	s := r.Stats
	fmt.Fprintf(w, "%s %s %s\n", cyan("Run"), r.RunID, gray(fmt.Sprintf("(%s, %s)", r.Trigger, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))))

	fmt.Fprintln(w, cyan("维护"))
	fmt.Fprintf(w, "  表内去重    主 %s  子 %s  级联 %s\n", yellow(s.IntraMainDeleted), yellow(s.IntraSubDeleted), gray(s.IntraCascaded))
	fmt.Fprintf(w, "  跨表去重    %s  级联 %s\n", yellow(s.CrossDeleted), gray(s.CrossCascaded))
	fmt.Fprintf(w, "  归档        %s\n", yellow(s.Archived))
	fmt.Fprintf(w, "  孤儿清理    %s\n", yellow(s.OrphansDeleted))

	if s.CandidatesReceived > 0 {
		fmt.Fprintln(w, cyan("入库"))
		fmt.Fprintf(w, "  收到 %d  无效 %s  过期 %s\n", s.CandidatesReceived, gray(s.DroppedInvalid), gray(s.DroppedPast))
		fmt.Fprintf(w, "  重复        主 %s  子 %s\n", gray(s.MainsDuplicate), gray(s.SubsDuplicate))
		fmt.Fprintf(w, "  纠正        %s  级联 %s\n", yellow(s.Corrections), gray(s.CorrectionCascaded))
		fmt.Fprintf(w, "  新增        主 %s  子 %s\n", green(s.MainsInserted), green(s.SubsInserted))
	}

	if r.Aborted {
		fmt.Fprintf(w, "%s %s\n", red("入库中止:"), r.Reason)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "%s %s\n", red("✗"), e)
	}
	if !r.Aborted && len(r.Errors) == 0 {
		fmt.Fprintln(w, green("✓ 完成"))
	}
}
