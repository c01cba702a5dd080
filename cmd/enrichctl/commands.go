package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"enrichdash/internal/exporter"
	"enrichdash/internal/importer"
	"enrichdash/internal/jobs"
	"enrichdash/internal/progress"
	"enrichdash/internal/report"
	"enrichdash/pkg/contracts/domain"
)

const timeLayout = "2006-01-02 15:04"

func (c *cli) cmdJobs(ctx context.Context, args []string) error {
	fs := c.flagSet("jobs")
	asJSON := fs.Bool("json", false, "print the raw job list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list, err := c.api.ListJobs(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return c.printJSON(domain.JobsResponse{Jobs: list})
	}
	if len(list) == 0 {
		fmt.Fprintln(c.stdout, "No jobs found")
		return nil
	}

	tw := c.table()
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tCOMPANIES\tCREATED")
	for _, j := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			j.ID, j.Name, j.Tag.Label(), j.Status.Label(),
			j.ProcessedCompanies, j.TotalCompanies, j.CreatedAt.Format(timeLayout))
	}
	return tw.Flush()
}

func (c *cli) cmdCompanies(ctx context.Context, args []string) error {
	fs := c.flagSet("companies")
	asJSON := fs.Bool("json", false, "print the raw company list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	jobID, err := oneArg(fs.Args(), "jobId")
	if err != nil {
		return err
	}

	resp, err := c.api.Companies(ctx, jobID)
	if err != nil {
		return err
	}
	if *asJSON {
		return c.printJSON(resp)
	}

	tw := c.table()
	fmt.Fprintln(tw, "ID\tNAME\tDOMAIN\tVMS\tREPORT\tSTATUS")
	for _, co := range resp.Companies {
		ready := "-"
		if co.HasReport() {
			ready = "ready"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			co.ID, co.Name, orDash(co.Domain), co.VMSLabel(), ready, co.StatusLabel())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "\n%d companies\n", resp.TotalCompanies)
	return nil
}

func (c *cli) cmdCreate(ctx context.Context, args []string) error {
	fs := c.flagSet("create")
	name := fs.String("name", "", "job name (defaults to the file name)")
	jobType := fs.String("type", string(domain.JobTypeCompanyLookup), "job type: company_lookup|vms_check")
	wait := fs.Bool("wait", false, "follow the job and download its results when it completes")
	out := fs.String("out", "", "with -wait, destination of the results (defaults to the reports directory)")
	timeout := fs.Duration("timeout", 0, "with -wait, give up after this long (0 waits until the job ends)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	file, err := oneArg(fs.Args(), "file")
	if err != nil {
		return err
	}

	companies, err := importer.ReadFile(file, domain.JobType(*jobType))
	if err != nil {
		return err
	}
	if strings.TrimSpace(*name) == "" {
		*name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}

	jobID, err := c.api.CreateLookupJob(ctx, importer.NewLookupJobRequest(*name, domain.JobType(*jobType), companies))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Created job %s with %d companies\n", jobID, len(companies))
	if !*wait {
		return nil
	}
	return c.awaitResults(ctx, jobID, *out, *timeout)
}

// awaitResults follows a lookup job over the push channel and saves its
// results once the backend reports it complete.
func (c *cli) awaitResults(ctx context.Context, jobID, dest string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var printed bool
	err := progress.FollowLookup(ctx, c.channel, jobID, func(percent int) {
		printed = true
		fmt.Fprintf(c.stdout, "\rJob %s: %3d%%", jobID, percent)
	}, c.logger)
	if printed {
		fmt.Fprintln(c.stdout)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("job %s still running after %s", jobID, timeout)
	}
	if err != nil {
		return err
	}

	paths, err := c.cfg.GetPaths()
	if err != nil {
		return err
	}
	path, n, err := report.NewService(c.api, paths, c.logger).SaveResults(ctx, jobID, dest)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Saved results to %s (%d bytes)\n", path, n)
	return nil
}

func (c *cli) cmdEnrich(ctx context.Context, args []string) error {
	fs := c.flagSet("enrich")
	name := fs.String("name", "", "enrichment job name (defaults to \"Enrich <source job name>\")")
	source := fs.String("source", "", "job the companies come from")
	all := fs.Bool("all", false, "select every company of the source job")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ids := fs.Args()
	if *all {
		if *source == "" {
			return usagef("-all needs -source")
		}
		resp, err := c.api.Companies(ctx, *source)
		if err != nil {
			return err
		}
		ids = make([]string, 0, len(resp.Companies))
		for _, co := range resp.Companies {
			ids = append(ids, co.ID)
		}
	}
	if len(ids) == 0 {
		return jobs.ErrEmptySelection
	}

	if strings.TrimSpace(*name) == "" {
		if *source == "" {
			return usagef("-name or -source is required")
		}
		job, err := c.api.GetJob(ctx, *source)
		if err != nil {
			return err
		}
		*name = jobs.EnrichmentName(job.Name)
	}

	jobID, err := c.api.ProcessCompanies(ctx, domain.ProcessCompaniesRequest{CompanyIDs: ids, Name: *name})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Started enrichment job %s for %d companies\n", jobID, len(ids))
	return nil
}

func (c *cli) cmdDelete(ctx context.Context, args []string) error {
	fs := c.flagSet("delete")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch fs.NArg() {
	case 1:
		if err := c.api.DeleteJob(ctx, fs.Arg(0)); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Deleted job %s\n", fs.Arg(0))
	case 2:
		if err := c.api.DeleteCompany(ctx, fs.Arg(0), fs.Arg(1)); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Deleted company %s from job %s\n", fs.Arg(1), fs.Arg(0))
	default:
		return usagef("expected <jobId> [companyId]")
	}
	return nil
}

func (c *cli) cmdReport(ctx context.Context, args []string) error {
	fs := c.flagSet("report")
	out := fs.String("out", "", "destination file (defaults to the reports directory)")
	asText := fs.Bool("text", false, "print the report as text instead of downloading it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	companyID, err := oneArg(fs.Args(), "companyId")
	if err != nil {
		return err
	}

	paths, err := c.cfg.GetPaths()
	if err != nil {
		return err
	}
	svc := report.NewService(c.api, paths, c.logger)

	if *asText {
		doc, err := svc.Text(ctx, companyID)
		if err != nil {
			return err
		}
		fmt.Fprint(c.stdout, doc.String())
		return nil
	}

	path, n, err := svc.Save(ctx, companyID, *out)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Saved report to %s (%d bytes)\n", path, n)
	return nil
}

func (c *cli) cmdExport(ctx context.Context, args []string) error {
	fs := c.flagSet("export")
	formatName := fs.String("format", string(exporter.FormatCSV), "file format: csv|xlsx")
	if err := fs.Parse(args); err != nil {
		return err
	}
	jobID, err := oneArg(fs.Args(), "jobId")
	if err != nil {
		return err
	}
	format, err := exporter.ParseFormat(*formatName)
	if err != nil {
		return usagef("%v", err)
	}

	resp, err := c.api.Companies(ctx, jobID)
	if err != nil {
		return err
	}
	paths, err := c.paths()
	if err != nil {
		return err
	}

	path, err := exporter.NewCompanyExporter(paths).Export(jobID, format, resp.Companies)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Exported %d companies to %s\n", len(resp.Companies), path)
	return nil
}

func (c *cli) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func oneArg(args []string, name string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", usagef("expected <%s>", name)
	}
	return args[0], nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
