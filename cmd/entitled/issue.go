package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gatewright/entitled/internal/issuer"
	"github.com/gatewright/entitled/pkg/entitlement"
)

var (
	issuePurchaseID string
	issueSubject    string
	issuePlanID     string
	issueEmail      string
	issueExpiryDays int
	issueValidHours int
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue signed tokens (requires signing key material)",
}

var issueLicenseCmd = &cobra.Command{
	Use:   "license",
	Short: "Issue a license token for a completed purchase",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeStore, err := newIssuerService()
		if err != nil {
			return err
		}
		defer closeStore()

		purchaseID := issuePurchaseID
		if purchaseID == "" {
			purchaseID = "pur_" + uuid.NewString()
		}
		token, err := svc.IssueLicense(purchaseID, issuePlanID, issueEmail, issueExpiryDays)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var issueEntitlementCmd = &cobra.Command{
	Use:   "entitlement",
	Short: "Issue an entitlement token for a subject",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeStore, err := newIssuerService()
		if err != nil {
			return err
		}
		defer closeStore()

		subject := issueSubject
		if subject == "" {
			subject = "sub_" + uuid.NewString()
		}
		token, err := svc.IssueEntitlement(subject, issuePlanID, issueEmail, time.Duration(issueValidHours)*time.Hour)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func newIssuerService() (*issuer.Service, func(), error) {
	store, err := issuer.OpenStore(filepath.Join(loadedConfig.DataDir, "issuer"))
	if err != nil {
		return nil, nil, err
	}

	var licenses *entitlement.LicenseSigner
	if loadedConfig.LicenseSecret != "" {
		licenses, err = entitlement.NewLicenseSigner(loadedConfig.LicenseSecret)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	var entitlements *entitlement.EntitlementSigner
	if loadedConfig.EntitlementPrivateKey != "" {
		entitlements, err = entitlement.NewEntitlementSigner(loadedConfig.EntitlementPrivateKey)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	svc := issuer.New(store, licenses, entitlements, nil)
	return svc, func() { _ = store.Close() }, nil
}

func init() {
	issueCmd.AddCommand(issueLicenseCmd)
	issueCmd.AddCommand(issueEntitlementCmd)

	issueLicenseCmd.Flags().StringVar(&issuePurchaseID, "purchase-id", "", "purchase id (generated when empty)")
	issueLicenseCmd.Flags().StringVar(&issuePlanID, "plan", "solo_monthly", "plan id")
	issueLicenseCmd.Flags().StringVar(&issueEmail, "email", "", "purchaser email")
	issueLicenseCmd.Flags().IntVar(&issueExpiryDays, "days", 30, "validity in days")

	issueEntitlementCmd.Flags().StringVar(&issueSubject, "subject", "", "subject id (generated when empty)")
	issueEntitlementCmd.Flags().StringVar(&issuePlanID, "plan", "solo_monthly", "plan id")
	issueEntitlementCmd.Flags().StringVar(&issueEmail, "email", "", "subject email")
	issueEntitlementCmd.Flags().IntVar(&issueValidHours, "valid-hours", 30*24, "validity in hours")
}
