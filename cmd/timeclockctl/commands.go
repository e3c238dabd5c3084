package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"timeclock/backend/config"
	"timeclock/backend/internal/dto"
	"timeclock/backend/internal/job"
	"timeclock/backend/internal/model"
	"timeclock/backend/internal/repository"
	"timeclock/backend/pkg/database"
)

// ── migrate ──

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "数据库迁移"}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "执行全部未应用的迁移",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()
			return database.RunMigrations(a.db, a.cfg.Database.Driver, a.logger)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "回滚迁移（仅 PostgreSQL）",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.Database.Driver != config.DriverPostgres {
				return errors.New("SQLite 使用 AutoMigrate，不支持回滚")
			}
			return database.MigrateDown(a.db, steps, a.logger)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "回滚的版本数")
	cmd.AddCommand(down)

	return cmd
}

// ── sweep ──

func newSweepCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "立即执行日终巡检，为未闭合的打卡日生成考勤异常",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			userID := ""
			if user != "" {
				if userID, err = resolveUserID(cmd, a.repo, user); err != nil {
					return err
				}
			}

			var locker job.Locker
			if a.rdb != nil {
				locker = a.rdb
			}
			// 与服务进程共用同一把 Redis 锁，不会和定时巡检并发
			sweeper, err := job.NewSweeper(&a.cfg.TimeClock, a.svc.Incident, locker, a.engine.Location(), a.logger)
			if err != nil {
				return err
			}

			result, err := sweeper.TriggerNow(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "巡检用户 %d 人，新增异常 %d 条，失败 %d 人\n", result.Users, result.Reported, result.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "只巡检指定用户（邮箱或 ID）")
	return cmd
}

// ── summary ──

func newSummaryCmd() *cobra.Command {
	var (
		user, from, to string
		asJSON         bool
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "打印员工每日工时汇总",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			userID, err := resolveUserID(cmd, a.repo, user)
			if err != nil {
				return err
			}
			result, err := a.svc.TimeEntry.GetDailySummaries(cmd.Context(), userID, &dto.DateRangeRequest{StartDate: from, EndDate: to})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "日期\t区间数\t工时\t完整\t有修改")
			for _, d := range result.DailySummaries {
				fmt.Fprintf(tw, "%s\t%d\t%.2f\t%s\t%s\n", d.Date, len(d.Pairs), d.TotalHours, yesNo(d.IsComplete), yesNo(d.HasModifications))
			}
			fmt.Fprintf(tw, "合计 %s ~ %s\t%d 天\t%.2f\t日均 %.2f\t\n", result.StartDate, result.EndDate, result.TotalDays, result.TotalHours, result.AverageHoursPerDay)
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "员工邮箱或 ID")
	cmd.Flags().StringVar(&from, "from", "", "起始日期 YYYY-MM-DD（默认回溯窗口起点）")
	cmd.Flags().StringVar(&to, "to", "", "结束日期 YYYY-MM-DD（默认今天）")
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// ── user ──

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "用户管理"}

	var name, email, password string
	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "创建管理员账号（首次部署初始化用）",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			if password == "" {
				password = os.Getenv("TIMECLOCK_ADMIN_PASSWORD")
			}
			if len(password) < 8 {
				return errors.New("密码长度不能少于 8 位")
			}
			user, err := a.svc.User.Create(cmd.Context(), &dto.CreateUserRequest{
				Name:     name,
				Email:    email,
				Password: password,
				Role:     model.RoleAdmin,
			}, "", dto.RequestMeta{UserAgent: "timeclockctl"})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已创建管理员 %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	createAdmin.Flags().StringVar(&name, "name", "管理员", "姓名")
	createAdmin.Flags().StringVar(&email, "email", "", "登录邮箱")
	createAdmin.Flags().StringVar(&password, "password", "", "初始密码（也可通过 TIMECLOCK_ADMIN_PASSWORD 传入）")
	_ = createAdmin.MarkFlagRequired("email")
	cmd.AddCommand(createAdmin)

	return cmd
}

// resolveUserID 接受用户 ID 或邮箱
func resolveUserID(cmd *cobra.Command, repo *repository.Repository, ref string) (string, error) {
	if _, err := uuid.Parse(ref); err == nil {
		return ref, nil
	}
	u, err := repo.User.GetByEmail(cmd.Context(), strings.ToLower(strings.TrimSpace(ref)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("用户 %q 不存在", ref)
		}
		return "", err
	}
	return u.UserID, nil
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}
