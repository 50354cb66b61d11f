// Package content holds the storefront's marketing copy and contact details.
//
// A Site value is decoded once from configuration at process start and
// handed to whoever renders it. It is never mutated afterwards.
package content

import (
	"strconv"
	"strings"
)

type Site struct {
	Brand   Brand   `mapstructure:"brand" json:"brand"`
	Nav     Nav     `mapstructure:"nav" json:"nav"`
	Home    Home    `mapstructure:"home" json:"home"`
	About   About   `mapstructure:"about" json:"about"`
	Contact Contact `mapstructure:"contact" json:"contact"`
	Footer  Footer  `mapstructure:"footer" json:"footer"`
}

type Brand struct {
	Name string `mapstructure:"name" json:"name"`
}

type Nav struct {
	Home        string `mapstructure:"home" json:"home"`
	Shop        string `mapstructure:"shop" json:"shop"`
	Electronics string `mapstructure:"electronics" json:"electronics"`
	HomeDecor   string `mapstructure:"home_decor" json:"homeDecor"`
	About       string `mapstructure:"about" json:"about"`
	Login       string `mapstructure:"login" json:"login"`
	Admin       string `mapstructure:"admin" json:"admin"`
}

type Home struct {
	Hero       Hero       `mapstructure:"hero" json:"hero"`
	Categories Categories `mapstructure:"categories" json:"categories"`
	Featured   Featured   `mapstructure:"featured" json:"featured"`
}

type Hero struct {
	Badge        string `mapstructure:"badge" json:"badge"`
	Title        string `mapstructure:"title" json:"title"`
	TitleAccent  string `mapstructure:"title_accent" json:"titleAccent"`
	Description  string `mapstructure:"description" json:"description"`
	CTAPrimary   string `mapstructure:"cta_primary" json:"ctaPrimary"`
	CTASecondary string `mapstructure:"cta_secondary" json:"ctaSecondary"`
	ImageAlt     string `mapstructure:"image_alt" json:"imageAlt"`
}

type Categories struct {
	Heading     string       `mapstructure:"heading" json:"heading"`
	Subheading  string       `mapstructure:"subheading" json:"subheading"`
	Electronics CategoryCard `mapstructure:"electronics" json:"electronics"`
	HomeDecor   CategoryCard `mapstructure:"home_decor" json:"homeDecor"`
}

type CategoryCard struct {
	Title       string `mapstructure:"title" json:"title"`
	Description string `mapstructure:"description" json:"description"`
	CTA         string `mapstructure:"cta" json:"cta"`
	ImageAlt    string `mapstructure:"image_alt" json:"imageAlt"`
}

type Featured struct {
	Heading           string `mapstructure:"heading" json:"heading"`
	Subheading        string `mapstructure:"subheading" json:"subheading"`
	EmptyMessage      string `mapstructure:"empty_message" json:"emptyMessage"`
	EmptyMessageAdmin string `mapstructure:"empty_message_admin" json:"emptyMessageAdmin"`
	ViewAllCTA        string `mapstructure:"view_all_cta" json:"viewAllCta"`
	InitializeButton  string `mapstructure:"initialize_button" json:"initializeButton"`
}

type About struct {
	Heading    string   `mapstructure:"heading" json:"heading"`
	Paragraphs []string `mapstructure:"paragraphs" json:"paragraphs"`
}

type Contact struct {
	Heading string       `mapstructure:"heading" json:"heading"`
	Intro   string       `mapstructure:"intro" json:"intro"`
	Email   ContactEntry `mapstructure:"email" json:"email"`
	Phone   ContactEntry `mapstructure:"phone" json:"phone"`
	Address ContactEntry `mapstructure:"address" json:"address"`
}

type ContactEntry struct {
	Label string `mapstructure:"label" json:"label"`
	Value string `mapstructure:"value" json:"value"`
}

type Footer struct {
	BrandBlurb        string `mapstructure:"brand_blurb" json:"brandBlurb"`
	ContactBlurb      string `mapstructure:"contact_blurb" json:"contactBlurb"`
	CopyrightTemplate string `mapstructure:"copyright_template" json:"copyrightTemplate"`
	QuickLinksHeading string `mapstructure:"quick_links_heading" json:"quickLinksHeading"`
}

// Default returns the stock copy shipped with the storefront.
func Default() Site {
	return Site{
		Brand: Brand{Name: "The Lens"},
		Nav: Nav{
			Home:        "Home",
			Shop:        "Shop",
			Electronics: "Electronics",
			HomeDecor:   "Home Decor",
			About:       "About",
			Login:       "Login",
			Admin:       "Admin",
		},
		Home: Home{
			Hero: Hero{
				Badge:        "New Arrivals",
				Title:        "Curated Tech",
				TitleAccent:  "& Living",
				Description:  "Thoughtfully selected electronics and home decor for modern living.",
				CTAPrimary:   "Shop Now",
				CTASecondary: "Explore Categories",
				ImageAlt:     "Featured products",
			},
			Categories: Categories{
				Heading:    "Shop by Category",
				Subheading: "Find exactly what you need",
				Electronics: CategoryCard{
					Title:       "Electronics",
					Description: "Audio, accessories and everyday gadgets.",
					CTA:         "Browse Electronics",
					ImageAlt:    "Electronics category",
				},
				HomeDecor: CategoryCard{
					Title:       "Home Decor",
					Description: "Pieces that make a space feel like home.",
					CTA:         "Browse Home Decor",
					ImageAlt:    "Home decor category",
				},
			},
			Featured: Featured{
				Heading:           "Featured Products",
				Subheading:        "Handpicked favourites from our collection",
				EmptyMessage:      "No products available yet. Check back soon!",
				EmptyMessageAdmin: "No products yet. Initialize the shop to add sample products.",
				ViewAllCTA:        "View All Products",
				InitializeButton:  "Initialize Shop",
			},
		},
		About: About{
			Heading: "About The Lens",
			Paragraphs: []string{
				"The Lens is a small shop for electronics and home decor we actually use.",
			},
		},
		Contact: Contact{
			Heading: "Contact",
			Intro:   "Questions about an order? Get in touch.",
			Email:   ContactEntry{Label: "Email", Value: "hello@thelens.example"},
			Phone:   ContactEntry{Label: "Phone", Value: "+91 98765 43210"},
			Address: ContactEntry{Label: "Address", Value: "Bengaluru, India"},
		},
		Footer: Footer{
			BrandBlurb:        "Curated electronics and home decor.",
			ContactBlurb:      "We usually reply within a day.",
			CopyrightTemplate: "© {year} The Lens. All rights reserved.",
			QuickLinksHeading: "Quick Links",
		},
	}
}

// WithDefaults fills every empty field from Default.
func (s Site) WithDefaults() Site {
	d := Default()

	fill(&s.Brand.Name, d.Brand.Name)

	fill(&s.Nav.Home, d.Nav.Home)
	fill(&s.Nav.Shop, d.Nav.Shop)
	fill(&s.Nav.Electronics, d.Nav.Electronics)
	fill(&s.Nav.HomeDecor, d.Nav.HomeDecor)
	fill(&s.Nav.About, d.Nav.About)
	fill(&s.Nav.Login, d.Nav.Login)
	fill(&s.Nav.Admin, d.Nav.Admin)

	h, dh := &s.Home.Hero, d.Home.Hero
	fill(&h.Badge, dh.Badge)
	fill(&h.Title, dh.Title)
	fill(&h.TitleAccent, dh.TitleAccent)
	fill(&h.Description, dh.Description)
	fill(&h.CTAPrimary, dh.CTAPrimary)
	fill(&h.CTASecondary, dh.CTASecondary)
	fill(&h.ImageAlt, dh.ImageAlt)

	c, dc := &s.Home.Categories, d.Home.Categories
	fill(&c.Heading, dc.Heading)
	fill(&c.Subheading, dc.Subheading)
	fillCard(&c.Electronics, dc.Electronics)
	fillCard(&c.HomeDecor, dc.HomeDecor)

	f, df := &s.Home.Featured, d.Home.Featured
	fill(&f.Heading, df.Heading)
	fill(&f.Subheading, df.Subheading)
	fill(&f.EmptyMessage, df.EmptyMessage)
	fill(&f.EmptyMessageAdmin, df.EmptyMessageAdmin)
	fill(&f.ViewAllCTA, df.ViewAllCTA)
	fill(&f.InitializeButton, df.InitializeButton)

	fill(&s.About.Heading, d.About.Heading)
	if len(s.About.Paragraphs) == 0 {
		s.About.Paragraphs = append([]string(nil), d.About.Paragraphs...)
	}

	fill(&s.Contact.Heading, d.Contact.Heading)
	fill(&s.Contact.Intro, d.Contact.Intro)
	fillEntry(&s.Contact.Email, d.Contact.Email)
	fillEntry(&s.Contact.Phone, d.Contact.Phone)
	fillEntry(&s.Contact.Address, d.Contact.Address)

	fill(&s.Footer.BrandBlurb, d.Footer.BrandBlurb)
	fill(&s.Footer.ContactBlurb, d.Footer.ContactBlurb)
	fill(&s.Footer.CopyrightTemplate, d.Footer.CopyrightTemplate)
	fill(&s.Footer.QuickLinksHeading, d.Footer.QuickLinksHeading)

	return s
}

// Copyright renders the footer copyright line for the given year.
func (s Site) Copyright(year int) string {
	return strings.ReplaceAll(s.Footer.CopyrightTemplate, "{year}", strconv.Itoa(year))
}

func fill(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}

func fillCard(dst *CategoryCard, def CategoryCard) {
	fill(&dst.Title, def.Title)
	fill(&dst.Description, def.Description)
	fill(&dst.CTA, def.CTA)
	fill(&dst.ImageAlt, def.ImageAlt)
}

func fillEntry(dst *ContactEntry, def ContactEntry) {
	fill(&dst.Label, def.Label)
	fill(&dst.Value, def.Value)
}
